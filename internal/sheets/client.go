package sheets

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/local/supportbot/internal/config"
)

// vendorClient is the real RawClient, backed by the generated sheets/v4
// service. It is the only file in this package that imports the vendor SDK
// directly; everything else talks to RawClient.
type vendorClient struct {
	svc *sheets.Service
}

// NewVendorClientFactory returns a ClientFactory that authenticates with the
// configured service-account credentials (file or inline JSON) and builds a
// sheets/v4 service, mirroring the teacher's pattern of a small factory
// closure that captures config once and is re-invoked on cache invalidation.
func NewVendorClientFactory(cred config.CredentialsConfig) ClientFactory {
	return func(ctx context.Context) (RawClient, error) {
		var opt option.ClientOption
		switch {
		case cred.JSON != "":
			opt = option.WithCredentialsJSON([]byte(cred.JSON))
		case cred.File != "":
			opt = option.WithCredentialsFile(cred.File)
		default:
			return nil, fmt.Errorf("sheets: no credentials configured")
		}
		svc, err := sheets.NewService(ctx, opt)
		if err != nil {
			return nil, fmt.Errorf("sheets: building service: %w", err)
		}
		return &vendorClient{svc: svc}, nil
	}
}

func (c *vendorClient) GetValues(ctx context.Context, spreadsheetID, sheetName, a1Range string) ([][]string, error) {
	rng := sheetName
	if a1Range != "" {
		rng = sheetName + "!" + a1Range
	}
	resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		rows[i] = make([]string, len(row))
		for j, cell := range row {
			rows[i][j] = fmt.Sprintf("%v", cell)
		}
	}
	return rows, nil
}

func (c *vendorClient) UpdateCell(ctx context.Context, spreadsheetID, sheetName, a1, value string) error {
	rng := sheetName + "!" + a1
	vr := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	_, err := c.svc.Spreadsheets.Values.Update(spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

func (c *vendorClient) BatchUpdateCells(ctx context.Context, spreadsheetID, sheetName string, updates []CellUpdate) error {
	data := make([]*sheets.ValueRange, 0, len(updates))
	for _, u := range updates {
		data = append(data, &sheets.ValueRange{
			Range:  sheetName + "!" + u.A1,
			Values: [][]interface{}{{u.Value}},
		})
	}
	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             data,
	}
	_, err := c.svc.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return err
}

func (c *vendorClient) AppendRow(ctx context.Context, spreadsheetID, sheetName string, row []string) error {
	vals := make([]interface{}, len(row))
	for i, v := range row {
		vals[i] = v
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{vals}}
	_, err := c.svc.Spreadsheets.Values.Append(spreadsheetID, sheetName, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	return err
}

// FormatCell looks up sheetName's numeric sheetId and issues a
// repeatCellFormat batch update limited to a single cell. a1 must be a plain
// cell reference (e.g. "C7"); ranges are not supported since the coordinator
// only ever colors single status cells.
func (c *vendorClient) FormatCell(ctx context.Context, spreadsheetID, sheetName, a1 string, color Color) error {
	sheetID, rowIdx, colIdx, err := c.resolveCell(ctx, spreadsheetID, sheetName, a1)
	if err != nil {
		return err
	}
	rgb := colorRGB(color)
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{
						SheetId:          sheetID,
						StartRowIndex:    int64(rowIdx),
						EndRowIndex:      int64(rowIdx + 1),
						StartColumnIndex: int64(colIdx),
						EndColumnIndex:   int64(colIdx + 1),
					},
					Cell: &sheets.CellData{
						UserEnteredFormat: &sheets.CellFormat{
							BackgroundColor: rgb,
						},
					},
					Fields: "userEnteredFormat.backgroundColor",
				},
			},
		},
	}
	_, err = c.svc.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return err
}

func (c *vendorClient) resolveCell(ctx context.Context, spreadsheetID, sheetName, a1 string) (sheetID int64, row, col int, err error) {
	meta, err := c.svc.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, 0, 0, err
	}
	for _, sh := range meta.Sheets {
		if sh.Properties.Title == sheetName {
			sheetID = sh.Properties.SheetId
			row, col, err = parseA1(a1)
			return sheetID, row, col, err
		}
	}
	return 0, 0, 0, fmt.Errorf("sheets: sheet %q not found", sheetName)
}

func colorRGB(c Color) *sheets.Color {
	switch c {
	case ColorWarmPink:
		return &sheets.Color{Red: 0.97, Green: 0.75, Blue: 0.80}
	case ColorPaleGreen:
		return &sheets.Color{Red: 0.78, Green: 0.92, Blue: 0.80}
	default:
		return &sheets.Color{Red: 1, Green: 1, Blue: 1}
	}
}

// parseA1 converts a plain cell reference like "C7" into zero-based
// (row, col) indices.
func parseA1(a1 string) (row, col int, err error) {
	i := 0
	for i < len(a1) && a1[i] >= 'A' && a1[i] <= 'Z' {
		col = col*26 + int(a1[i]-'A'+1)
		i++
	}
	if i == 0 {
		return 0, 0, fmt.Errorf("sheets: invalid cell reference %q", a1)
	}
	col--
	rowStr := a1[i:]
	if rowStr == "" {
		return 0, 0, fmt.Errorf("sheets: invalid cell reference %q", a1)
	}
	rowNum := 0
	for _, ch := range rowStr {
		if ch < '0' || ch > '9' {
			return 0, 0, fmt.Errorf("sheets: invalid cell reference %q", a1)
		}
		rowNum = rowNum*10 + int(ch-'0')
	}
	return rowNum - 1, col, nil
}
