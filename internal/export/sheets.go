package export

import (
	"context"
	"fmt"
	"time"

	"leadgen-server/internal/leads"
	"leadgen-server/internal/observability"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsWriter writes a run's leads to a new Google Spreadsheet in the
// account behind the supplied token source.
type SheetsWriter struct {
	tokens oauth2.TokenSource
	logger *observability.Logger
}

func NewSheetsWriter(tokens oauth2.TokenSource, logger *observability.Logger) *SheetsWriter {
	return &SheetsWriter{
		tokens: tokens,
		logger: logger,
	}
}

// Write creates a spreadsheet named after the run and returns its URL.
func (w *SheetsWriter) Write(ctx context.Context, runID string, items []leads.Lead, summary string) (string, error) {
	service, err := sheets.NewService(ctx, option.WithTokenSource(w.tokens))
	if err != nil {
		return "", fmt.Errorf("failed to create sheets service: %w", err)
	}

	spreadsheet, err := service.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title: fmt.Sprintf("Leads %s (%s)", runID, time.Now().Format("2006-01-02")),
		},
		Sheets: []*sheets.Sheet{
			{Properties: &sheets.SheetProperties{Title: leadsSheet}},
			{Properties: &sheets.SheetProperties{Title: "Summary"}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create spreadsheet: %w", err)
	}

	values := make([][]interface{}, 0, len(items)+1)
	header := make([]interface{}, len(leadHeaders))
	for i, h := range leadHeaders {
		header[i] = h
	}
	values = append(values, header)
	for _, row := range leadRows(items) {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			cells[i] = v
		}
		values = append(values, cells)
	}

	_, err = service.Spreadsheets.Values.Update(spreadsheet.SpreadsheetId, leadsSheet+"!A1",
		&sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to write lead rows: %w", err)
	}

	_, err = service.Spreadsheets.Values.Update(spreadsheet.SpreadsheetId, "Summary!A1",
		&sheets.ValueRange{Values: [][]interface{}{
			{"Run ID", runID},
			{"Summary", summary},
		}}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}

	w.logger.Info(ctx, "spreadsheet created",
		observability.Field{Key: "spreadsheet_id", Value: spreadsheet.SpreadsheetId})
	return spreadsheet.SpreadsheetUrl, nil
}
