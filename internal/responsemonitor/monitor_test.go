package responsemonitor

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/local/supportbot/internal/appeals"
	"github.com/local/supportbot/internal/breaker"
	"github.com/local/supportbot/internal/config"
	"github.com/local/supportbot/internal/sheets"
)

// fakeSheet is a minimal in-memory sheets.RawClient, mirroring the one in
// internal/appeals's test file (kept separate per-package rather than
// exported, matching how the teacher keeps each package's test doubles
// local to that package).
type fakeSheet struct {
	mu   sync.Mutex
	rows [][]string
}

func (f *fakeSheet) GetValues(ctx context.Context, spreadsheetID, sheetName, a1Range string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func (f *fakeSheet) UpdateCell(ctx context.Context, spreadsheetID, sheetName, a1, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, col := parseA1(a1)
	f.rows[row-2] = setCol(f.rows[row-2], col, value)
	return nil
}

func (f *fakeSheet) BatchUpdateCells(ctx context.Context, spreadsheetID, sheetName string, updates []sheets.CellUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range updates {
		row, col := parseA1(u.A1)
		f.rows[row-2] = setCol(f.rows[row-2], col, u.Value)
	}
	return nil
}

func (f *fakeSheet) AppendRow(ctx context.Context, spreadsheetID, sheetName string, row []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeSheet) FormatCell(ctx context.Context, spreadsheetID, sheetName, a1 string, color sheets.Color) error {
	return nil
}

func setCol(row []string, col int, value string) []string {
	for len(row) <= col {
		row = append(row, "")
	}
	row[col] = value
	return row
}

func parseA1(a1 string) (row, col int) {
	i := 0
	for i < len(a1) && a1[i] >= 'A' && a1[i] <= 'Z' {
		col = col*26 + int(a1[i]-'A'+1)
		i++
	}
	col--
	n := 0
	for _, ch := range a1[i:] {
		n = n*10 + int(ch-'0')
	}
	return n, col
}

// fakeSender records every text sent, per user_id.
type fakeSender struct {
	mu   sync.Mutex
	sent map[string][]string
}

func newFakeSender() *fakeSender { return &fakeSender{sent: make(map[string][]string)} }

func (f *fakeSender) SendText(ctx context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[userID] = append(f.sent[userID], text)
	return nil
}

func (f *fakeSender) count(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[userID])
}

func newTestAppeals(t *testing.T) (*appeals.Service, *fakeSheet) {
	t.Helper()
	fs := &fakeSheet{}
	cfg := config.DefaultConfig()
	cfg.Sheets.AppealsSheetID = "appeals-id"
	cfg.Sheets.AppealsSheetName = "Appeals"
	cfg.Workers.SheetsPoolSize = 2
	gw := sheets.New(cfg, func(ctx context.Context) (sheets.RawClient, error) { return fs, nil }, breaker.NewManager(breaker.Config{}))
	t.Cleanup(gw.Close)
	return appeals.New(gw, zerolog.Nop()), fs
}

func TestTickDeliversAndClearsReply(t *testing.T) {
	svc, fs := newTestAppeals(t)
	ctx := context.Background()
	if err := svc.AppendUserMessage(ctx, "111222333", appeals.Identity{}, "help"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	fs.mu.Lock()
	fs.rows[0] = setCol(fs.rows[0], 6, "here is the answer") // column G
	fs.mu.Unlock()

	sender := newFakeSender()
	mon := New(svc, sender, zerolog.Nop())
	mon.tick(ctx)

	if sender.count("111222333") != 1 {
		t.Fatalf("expected exactly one send, got %d", sender.count("111222333"))
	}
	if fs.rows[0][5] != string(appeals.StatusResolved) {
		t.Fatalf("expected status resolved, got %q", fs.rows[0][5])
	}
	if fs.rows[0][6] != "" {
		t.Fatalf("expected reply cell cleared, got %q", fs.rows[0][6])
	}

	// Re-running the tick after the cell is cleared must send nothing more
	// (spec scenario 3).
	mon.tick(ctx)
	if sender.count("111222333") != 1 {
		t.Fatalf("expected no additional sends on rerun, got %d", sender.count("111222333"))
	}
}

func TestTickSkipsWhenNoRecords(t *testing.T) {
	svc, _ := newTestAppeals(t)
	sender := newFakeSender()
	mon := New(svc, sender, zerolog.Nop())
	mon.tick(context.Background())
	if sender.count("anyone") != 0 {
		t.Fatalf("expected no sends on an empty sheet")
	}
}
