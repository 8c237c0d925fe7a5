package leadfind

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leadgen-server/internal/clients/serper"
	"leadgen-server/internal/leads"
	"leadgen-server/internal/observability"
	"leadgen-server/internal/workflow"
)

const resultsPerSearch = 10

const extractionSystemPrompt = `You extract B2B sales leads from web search results.
Return a JSON object of the form {"leads": [{"name": "...", "company": "...", "title": "...", "linkedin": "..."}]}.
Only include real, named people. Leave fields you cannot determine empty. Never invent contact details.`

// SearchClient is the slice of the serper client the finder needs.
type SearchClient interface {
	Search(ctx context.Context, query string, num int) ([]serper.Result, error)
}

// ExtractionClient is the slice of the LLM client the finder needs.
type ExtractionClient interface {
	CompleteJSON(ctx context.Context, system, user string, out any) error
}

// Finder discovers leads by running web searches per target role and asking
// a language model to extract named people from the results. Each depth
// level adds one query variant per role, so deeper searches cast a wider
// net at the cost of more upstream calls.
type Finder struct {
	search  SearchClient
	extract ExtractionClient
	logger  *observability.Logger
}

func New(search SearchClient, extract ExtractionClient, logger *observability.Logger) *Finder {
	return &Finder{
		search:  search,
		extract: extract,
		logger:  logger,
	}
}

// queryVariants returns the search phrasings for one role, most specific
// first. Index is bounded by the query depth.
func queryVariants(query workflow.SearchQuery, role string) []string {
	variants := []string{
		fmt.Sprintf("%s %s site:linkedin.com/in", query.Strategy, role),
		fmt.Sprintf("%q %s", role, query.Strategy),
		fmt.Sprintf("%s %s contact", query.Strategy, role),
		fmt.Sprintf("%s %s %s", query.Strategy, role, query.Agenda),
		fmt.Sprintf("list of %s %s", role, query.Strategy),
	}
	if query.Depth < len(variants) {
		variants = variants[:query.Depth]
	}
	return variants
}

// FindLeads runs the discovery searches and extracts leads. When some
// searches fail after others produced results, the partial results are
// returned together with the error so the caller can degrade instead of
// aborting.
func (f *Finder) FindLeads(ctx context.Context, query workflow.SearchQuery) ([]leads.Lead, error) {
	var (
		collected []leads.Lead
		searchErr error
	)

	for _, role := range query.TargetRoles {
		for _, q := range queryVariants(query, role) {
			if ctx.Err() != nil {
				return collected, ctx.Err()
			}
			if len(collected) >= query.Limit {
				return collected, nil
			}

			results, err := f.search.Search(ctx, q, resultsPerSearch)
			if err != nil {
				f.logger.InfoWithError(ctx, fmt.Sprintf("search failed for query %q", q), err)
				searchErr = errors.Join(searchErr, err)
				continue
			}
			if len(results) == 0 {
				continue
			}

			extracted, err := f.extractLeads(ctx, role, results)
			if err != nil {
				f.logger.InfoWithError(ctx, "lead extraction failed", err)
				searchErr = errors.Join(searchErr, err)
				continue
			}
			collected = append(collected, extracted...)
		}
	}

	if len(collected) == 0 && searchErr != nil {
		return nil, searchErr
	}
	return collected, searchErr
}

func (f *Finder) extractLeads(ctx context.Context, role string, results []serper.Result) ([]leads.Lead, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Target role: %s\n\nSearch results:\n", role)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n\n", i+1, r.Title, r.Link, r.Snippet)
	}

	var reply struct {
		Leads []struct {
			Name     string `json:"name"`
			Company  string `json:"company"`
			Title    string `json:"title"`
			LinkedIn string `json:"linkedin"`
		} `json:"leads"`
	}
	if err := f.extract.CompleteJSON(ctx, extractionSystemPrompt, b.String(), &reply); err != nil {
		return nil, err
	}

	extracted := make([]leads.Lead, 0, len(reply.Leads))
	for _, l := range reply.Leads {
		lead := leads.Lead{
			Name:     strings.TrimSpace(l.Name),
			Company:  strings.TrimSpace(l.Company),
			Title:    strings.TrimSpace(l.Title),
			LinkedIn: strings.TrimSpace(l.LinkedIn),
		}
		if !lead.HasName() {
			continue
		}
		if lead.Title == "" {
			lead.Title = role
		}
		extracted = append(extracted, lead)
	}
	return extracted, nil
}
