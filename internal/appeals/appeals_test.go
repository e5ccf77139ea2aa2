package appeals

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/local/supportbot/internal/breaker"
	"github.com/local/supportbot/internal/config"
	"github.com/local/supportbot/internal/sheets"
)

// fakeSheet is a minimal in-memory sheets.RawClient backing a single tab,
// enough to exercise the appeals service's find-or-append logic end to end
// without a real Google Sheets backend.
type fakeSheet struct {
	mu     sync.Mutex
	rows   [][]string
	colors map[string]sheets.Color
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
	row, col := mustParseA1(a1)
	f.ensure(row)
	f.rows[row-2] = setCol(f.rows[row-2], col, value)
	return nil
}

func (f *fakeSheet) BatchUpdateCells(ctx context.Context, spreadsheetID, sheetName string, updates []sheets.CellUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range updates {
		row, col := mustParseA1(u.A1)
		f.ensure(row)
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
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.colors == nil {
		f.colors = make(map[string]sheets.Color)
	}
	f.colors[a1] = color
	return nil
}

func (f *fakeSheet) ensure(row int) {
	for len(f.rows) < row-1 {
		f.rows = append(f.rows, nil)
	}
}

func setCol(row []string, col int, value string) []string {
	for len(row) <= col {
		row = append(row, "")
	}
	row[col] = value
	return row
}

func mustParseA1(a1 string) (row, col int) {
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

func newTestService(t *testing.T) (*Service, *fakeSheet) {
	t.Helper()
	fs := &fakeSheet{}
	cfg := config.DefaultConfig()
	cfg.Sheets.AppealsSheetID = "appeals-id"
	cfg.Sheets.AppealsSheetName = "Appeals"
	cfg.Workers.SheetsPoolSize = 2
	gw := sheets.New(cfg, func(ctx context.Context) (sheets.RawClient, error) { return fs, nil }, breaker.NewManager(breaker.Config{}))
	t.Cleanup(gw.Close)
	return New(gw, zerolog.Nop()), fs
}

func TestAppendUserMessageCreatesRowOnFirstUse(t *testing.T) {
	svc, fs := newTestService(t)
	ctx := context.Background()

	if err := svc.AppendUserMessage(ctx, "u1", Identity{PartnerCode: "P1", Phone: "89101234567", Name: "Ivanov"}, "hello"); err != nil {
		t.Fatalf("AppendUserMessage: %v", err)
	}
	if len(fs.rows) != 1 {
		t.Fatalf("expected one row, got %d", len(fs.rows))
	}
	if !strings.HasSuffix(strings.TrimSpace(strings.Split(fs.rows[0][colMessages], "\n")[0]), ": hello") {
		t.Fatalf("unexpected message cell: %q", fs.rows[0][colMessages])
	}
	if fs.rows[0][colStatus] != string(StatusNew) {
		t.Fatalf("expected status new, got %q", fs.rows[0][colStatus])
	}
}

func TestConcurrentAppendsProduceTwoEntriesNoOverwrite(t *testing.T) {
	svc, fs := newTestService(t)
	ctx := context.Background()
	// Seed the row so both calls hit the existing-row path, matching spec
	// scenario 2 ("Race on writes").
	if err := svc.AppendUserMessage(ctx, "u1", Identity{}, "seed"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = svc.AppendUserMessage(ctx, "u1", Identity{}, "a") }()
	go func() { defer wg.Done(); _ = svc.AppendUserMessage(ctx, "u1", Identity{}, "b") }()
	wg.Wait()

	if len(fs.rows) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(fs.rows))
	}
	msgs := fs.rows[0][colMessages]
	if !strings.Contains(msgs, ": a") || !strings.Contains(msgs, ": b") {
		t.Fatalf("expected both entries present, got %q", msgs)
	}
}

func TestSetStatusAppliesColorAndIsIdempotent(t *testing.T) {
	svc, fs := newTestService(t)
	ctx := context.Background()
	if err := svc.AppendUserMessage(ctx, "u1", Identity{}, "hi"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := svc.SetStatus(ctx, "u1", StatusInWork); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := svc.SetStatus(ctx, "u1", StatusInWork); err != nil {
		t.Fatalf("SetStatus (idempotent repeat): %v", err)
	}
	if fs.rows[0][colStatus] != string(StatusInWork) {
		t.Fatalf("expected in_work, got %q", fs.rows[0][colStatus])
	}
	if fs.colors["F2"] != sheets.ColorWarmPink {
		t.Fatalf("expected warm pink on F2, got %v", fs.colors["F2"])
	}
}

func TestScanAndClearSpecialistReply(t *testing.T) {
	svc, fs := newTestService(t)
	ctx := context.Background()
	if err := svc.AppendUserMessage(ctx, "u1", Identity{}, "hi"); err != nil {
		t.Fatalf("append: %v", err)
	}
	fs.rows[0] = setCol(fs.rows[0], colReply, "here is the answer")

	replies, err := svc.ScanForSpecialistReplies(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(replies) != 1 || replies[0].UserID != "u1" {
		t.Fatalf("unexpected replies: %+v", replies)
	}

	if err := svc.ClearSpecialistReply(ctx, replies[0].RowID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	again, err := svc.ScanForSpecialistReplies(ctx)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no more replies after clearing, got %+v", again)
	}
}

func TestHasAnyRecords(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	has, err := svc.HasAnyRecords(ctx)
	if err != nil || has {
		t.Fatalf("expected no records initially, got has=%v err=%v", has, err)
	}
	_ = svc.AppendUserMessage(ctx, "u1", Identity{}, "hi")
	has, err = svc.HasAnyRecords(ctx)
	if err != nil || !has {
		t.Fatalf("expected records after append, got has=%v err=%v", has, err)
	}
}
