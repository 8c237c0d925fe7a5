package emailfind

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"leadgen-server/internal/clients/serper"
	"leadgen-server/internal/leads"
	"leadgen-server/internal/observability"
	"leadgen-server/internal/workflow"
)

// SearchClient is the slice of the serper client used for website discovery.
type SearchClient interface {
	Search(ctx context.Context, query string, num int) ([]serper.Result, error)
}

// MXLookup reports whether a domain publishes mail exchangers.
type MXLookup interface {
	HasMX(ctx context.Context, domain string) (bool, error)
}

// Finder derives a likely email address for a lead: it resolves the
// company's web domain through search, confirms the domain accepts mail via
// its MX records, and then picks the most common corporate address pattern.
// A miss is ("", nil); only infrastructure problems surface as errors.
type Finder struct {
	search SearchClient
	mx     MXLookup
	logger *observability.Logger

	mu      sync.Mutex
	domains map[string]string // company (lowercased) -> domain, "" means known miss
}

func New(search SearchClient, mx MXLookup, logger *observability.Logger) *Finder {
	return &Finder{
		search:  search,
		mx:      mx,
		logger:  logger,
		domains: make(map[string]string),
	}
}

func (f *Finder) FindEmail(ctx context.Context, lead leads.Lead) (string, error) {
	if lead.Company == "" || !lead.HasName() {
		return "", nil
	}

	domain, err := f.companyDomain(ctx, lead.Company)
	if err != nil {
		return "", err
	}
	if domain == "" {
		return "", nil
	}

	hasMX, err := f.mx.HasMX(ctx, domain)
	if err != nil {
		return "", fmt.Errorf("%w: mx lookup for %s: %v", workflow.ErrTransient, domain, err)
	}
	if !hasMX {
		return "", nil
	}

	candidates := candidateAddresses(lead.Name, domain)
	if len(candidates) == 0 {
		return "", nil
	}
	return candidates[0], nil
}

// companyDomain resolves and caches the web domain for a company name.
func (f *Finder) companyDomain(ctx context.Context, company string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(company))

	f.mu.Lock()
	domain, cached := f.domains[key]
	f.mu.Unlock()
	if cached {
		return domain, nil
	}

	results, err := f.search.Search(ctx, fmt.Sprintf("%s official website", company), 3)
	if err != nil {
		if errors.Is(err, serper.ErrRateLimited) {
			return "", fmt.Errorf("%w: %v", workflow.ErrTransient, err)
		}
		return "", err
	}

	domain = firstUsableDomain(results)

	f.mu.Lock()
	f.domains[key] = domain
	f.mu.Unlock()

	if domain == "" {
		f.logger.Info(ctx, fmt.Sprintf("no website found for company %q", company))
	}
	return domain, nil
}

// Aggregator and social hosts never carry corporate mailboxes.
var skippedHosts = map[string]struct{}{
	"linkedin.com":   {},
	"facebook.com":   {},
	"twitter.com":    {},
	"x.com":          {},
	"crunchbase.com": {},
	"wikipedia.org":  {},
	"youtube.com":    {},
}

func firstUsableDomain(results []serper.Result) string {
	for _, r := range results {
		parsed, err := url.Parse(r.Link)
		if err != nil || parsed.Host == "" {
			continue
		}
		host := strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
		if _, skip := skippedHosts[host]; skip {
			continue
		}
		if strings.Contains(host, ".") {
			return host
		}
	}
	return ""
}

// candidateAddresses returns address patterns in order of prevalence:
// first.last, first, flast.
func candidateAddresses(name, domain string) []string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	if len(parts) == 0 {
		return nil
	}

	first := sanitizeLocalPart(parts[0])
	if first == "" {
		return nil
	}
	if len(parts) == 1 {
		return []string{first + "@" + domain}
	}

	last := sanitizeLocalPart(parts[len(parts)-1])
	if last == "" {
		return []string{first + "@" + domain}
	}
	return []string{
		first + "." + last + "@" + domain,
		first + "@" + domain,
		string(first[0]) + last + "@" + domain,
	}
}

func sanitizeLocalPart(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
