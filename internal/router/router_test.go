package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/local/supportbot/internal/aisession"
	"github.com/local/supportbot/internal/appeals"
	"github.com/local/supportbot/internal/auth"
	"github.com/local/supportbot/internal/breaker"
	"github.com/local/supportbot/internal/config"
	"github.com/local/supportbot/internal/messenger"
	"github.com/local/supportbot/internal/ratelimit"
	"github.com/local/supportbot/internal/sheets"
	"github.com/local/supportbot/internal/vendorllm"
)

// fakeSheet is a minimal in-memory sheets.RawClient, the same shape
// responsemonitor's test file uses.
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

// fakeMessenger is a Messenger test double recording every outbound call.
type fakeMessenger struct {
	mu       sync.Mutex
	updates  chan messenger.Inbound
	sentText []string
	menus    []string
	prompts  []string
	offers   []string
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{updates: make(chan messenger.Inbound, 8)}
}

func (f *fakeMessenger) Updates() <-chan messenger.Inbound { return f.updates }

func (f *fakeMessenger) SendText(ctx context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentText = append(f.sentText, text)
	return nil
}

func (f *fakeMessenger) SendWebFormPrompt(ctx context.Context, userID, formURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, userID)
	return nil
}

func (f *fakeMessenger) SendMainMenu(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menus = append(f.menus, userID)
	return nil
}

func (f *fakeMessenger) SendEscalationOffer(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = append(f.offers, userID)
	return nil
}

// instantVendor replies once with a fixed final message, no tool calls.
type instantVendor struct {
	reply string
}

func (v *instantVendor) Stream(ctx context.Context, req vendorllm.TurnRequest) (<-chan vendorllm.Event, error) {
	out := make(chan vendorllm.Event, 1)
	out <- vendorllm.Event{Kind: vendorllm.EventFinal, Text: v.reply}
	close(out)
	return out, nil
}

func newTestRouter(t *testing.T, reply string) (*Router, *fakeMessenger, *fakeSheet) {
	t.Helper()
	fs := &fakeSheet{}
	cfg := config.DefaultConfig()
	cfg.Sheets.AuthSheetID = "auth-id"
	cfg.Sheets.AuthSheetName = "Auth"
	cfg.Sheets.AppealsSheetID = "appeals-id"
	cfg.Sheets.AppealsSheetName = "Appeals"
	gw := sheets.New(cfg, func(ctx context.Context) (sheets.RawClient, error) { return fs, nil }, breaker.NewManager(breaker.Config{}))
	t.Cleanup(gw.Close)

	authSvc := auth.New(gw, "")
	appealsSvc := appeals.New(gw, zerolog.Nop())
	sessions := aisession.NewManager(&instantVendor{reply: reply}, "test-model", nil, zerolog.Nop(), "")
	limiter := ratelimit.NewKeyedLimiter(100, 100)
	fm := newFakeMessenger()

	r := New(fm, authSvc, appealsSvc, sessions, limiter, nil, "https://example.com/form/", zerolog.Nop())
	return r, fm, fs
}

func TestHandleStartUnauthorizedSendsWebFormPrompt(t *testing.T) {
	r, fm, _ := newTestRouter(t, "hi")
	r.handleStart(context.Background(), "111")
	require.Equal(t, []string{"111"}, fm.prompts)
	require.Empty(t, fm.menus)
}

func TestHandleStartAuthorizedSendsMainMenu(t *testing.T) {
	r, fm, fs := newTestRouter(t, "hi")
	fs.rows = append(fs.rows, []string{"P1", "+79101234567", "Ann", "111", "authorized", ""})
	r.handleStart(context.Background(), "111")
	require.Equal(t, []string{"111"}, fm.menus)
	require.Empty(t, fm.prompts)
}

func TestHandleWebFormBindsThenShowsMenu(t *testing.T) {
	r, fm, fs := newTestRouter(t, "hi")
	fs.rows = append(fs.rows, []string{"P1", "+79101234567", "Ann", "", "not authorized", ""})
	in := messenger.Inbound{UserID: "111", WebForm: &messenger.WebFormSubmission{PartnerCode: "P1", PartnerPhone: "+7 910 123-45-67"}}
	r.handleWebForm(context.Background(), in)
	require.Equal(t, []string{"111"}, fm.menus)
	require.Equal(t, "111", fs.rows[0][3])
}

func TestHandleContactSpecialistSetsInWork(t *testing.T) {
	r, fm, fs := newTestRouter(t, "hi")
	ctx := context.Background()
	require.NoError(t, r.appeals.AppendUserMessage(ctx, "111", appeals.Identity{}, "help"))
	r.handleContactSpecialist(ctx, "111")
	require.Len(t, fm.sentText, 1)
	require.Equal(t, string(appeals.StatusInWork), fs.rows[0][5])
}

func TestHandleMessageRecordsReplyAndOffersEscalation(t *testing.T) {
	r, fm, fs := newTestRouter(t, "I understand your frustration. Let me contact a human specialist for you.")
	r.handleMessage(context.Background(), messenger.Inbound{UserID: "111", Text: "I want a refund now"})

	require.Eventually(t, func() bool {
		fm.mu.Lock()
		defer fm.mu.Unlock()
		return len(fm.offers) == 1
	}, time.Second, 10*time.Millisecond)

	require.Contains(t, fs.rows[0][4], "[assistant]")
}

func TestIsContactSpecialistIntent(t *testing.T) {
	require.True(t, isContactSpecialistIntent("I'd like to talk to a human please"))
	require.False(t, isContactSpecialistIntent("what is my balance"))
}
