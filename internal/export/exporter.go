package export

import (
	"context"
	"fmt"

	"leadgen-server/internal/leads"
	"leadgen-server/internal/observability"
)

const (
	DestinationSheets = "sheets"
	DestinationXLSX   = "xlsx"
)

// Writer persists rows to one destination and returns its location.
type Writer interface {
	Write(ctx context.Context, runID string, items []leads.Lead, summary string) (string, error)
}

// ExportRecorder receives the destination of each successful export.
type ExportRecorder interface {
	RecordExportCreated(destination string)
}

// Exporter writes finished runs to Google Sheets when the run's owner has
// linked a Google account, with a local Excel workbook as fallback. A failed
// Sheets write falls through to the workbook rather than failing the export.
type Exporter struct {
	sheets  Writer // nil when no Google account is linked
	xlsx    Writer
	metrics ExportRecorder
	logger  *observability.Logger
}

func New(sheets, xlsx Writer, metrics ExportRecorder, logger *observability.Logger) *Exporter {
	return &Exporter{
		sheets:  sheets,
		xlsx:    xlsx,
		metrics: metrics,
		logger:  logger,
	}
}

func (e *Exporter) Export(ctx context.Context, runID string, items []leads.Lead, summary string) (leads.ExportReceipt, error) {
	if e.sheets != nil {
		location, err := e.sheets.Write(ctx, runID, items, summary)
		if err == nil {
			e.metrics.RecordExportCreated(DestinationSheets)
			return leads.ExportReceipt{
				Destination: DestinationSheets,
				Location:    location,
				RowCount:    len(items),
			}, nil
		}
		e.logger.InfoWithError(ctx, "sheets export failed, falling back to workbook", err)
	}

	location, err := e.xlsx.Write(ctx, runID, items, summary)
	if err != nil {
		return leads.ExportReceipt{}, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.metrics.RecordExportCreated(DestinationXLSX)
	return leads.ExportReceipt{
		Destination: DestinationXLSX,
		Location:    location,
		RowCount:    len(items),
	}, nil
}
