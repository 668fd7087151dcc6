// Package googlesheets reads worksheets from the bookkeeping
// spreadsheet through the Sheets API.
package googlesheets

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Client wraps a read-only Sheets API session on one spreadsheet.
type Client struct {
	svc     *sheets.Service
	sheetID string
	log     zerolog.Logger
}

// New authenticates with a service account key and binds the client to
// one spreadsheet.
func New(ctx context.Context, sheetID string, credentialsJSON []byte, log zerolog.Logger) (*Client, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(sheets.SpreadsheetsReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Client{
		svc:     svc,
		sheetID: sheetID,
		log:     log.With().Str("component", "googlesheets").Logger(),
	}, nil
}

// ReadSheet returns every row of one worksheet as displayed strings.
// Formatted values are requested on purpose: the raw layer stores the
// sheet exactly as a human sees it, currency symbols included, and the
// cleanse stage owns the normalization.
func (c *Client) ReadSheet(ctx context.Context, worksheet string) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.sheetID, worksheet).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %q: %w", worksheet, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = fmt.Sprint(cell)
		}
		rows = append(rows, cells)
	}

	c.log.Debug().Str("worksheet", worksheet).Int("rows", len(rows)).Msg("Worksheet read")
	return rows, nil
}

// ExportCSV renders one worksheet to CSV bytes, the form the raw layer
// stores. Ragged rows are padded to the header width so every line has
// the same number of fields.
func (c *Client) ExportCSV(ctx context.Context, worksheet string) ([]byte, error) {
	rows, err := c.ReadSheet(ctx, worksheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("worksheet %q is empty", worksheet)
	}

	width := len(rows[0])
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		for len(row) < width {
			row = append(row, "")
		}
		if len(row) > width {
			row = row[:width]
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to encode worksheet %q: %w", worksheet, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode worksheet %q: %w", worksheet, err)
	}

	return buf.Bytes(), nil
}
