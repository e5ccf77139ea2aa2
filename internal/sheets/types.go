package sheets

import "context"

// Color names the cell background colors the coordinator applies to status
// cells (spec §4.2: warm pink for in_work, pale green for resolved).
type Color int

const (
	ColorNone Color = iota
	ColorWarmPink
	ColorPaleGreen
)

// CellUpdate addresses a single cell write within a batch update.
type CellUpdate struct {
	A1    string
	Value string
}

// RawClient is the narrow surface this package needs from the vendor Sheets
// client. Keeping it an interface (rather than depending on *sheets.Service
// directly everywhere) lets tests substitute a fake, the same way the
// teacher's channel adapters depend on a narrow sender interface instead of
// the concrete vendor SDK client.
type RawClient interface {
	GetValues(ctx context.Context, spreadsheetID, sheetName, a1Range string) ([][]string, error)
	UpdateCell(ctx context.Context, spreadsheetID, sheetName, a1 string, value string) error
	BatchUpdateCells(ctx context.Context, spreadsheetID, sheetName string, updates []CellUpdate) error
	AppendRow(ctx context.Context, spreadsheetID, sheetName string, row []string) error
	FormatCell(ctx context.Context, spreadsheetID, sheetName, a1 string, color Color) error
}

// ClientFactory builds a fresh RawClient, re-reading credentials. The
// gateway calls this again whenever the cached client starts failing
// authentication, the same invalidate-and-rebuild shape the teacher's
// whatsapp.go uses for its session client.
type ClientFactory func(ctx context.Context) (RawClient, error)

// Endpoint names the three logical sheets this package serves, used as the
// circuit breaker key and in error messages.
type Endpoint string

const (
	EndpointAuth       Endpoint = "auth"
	EndpointAppeals    Endpoint = "appeals"
	EndpointPromotions Endpoint = "promotions"
)
