// Package appeals implements the appeals state machine (C4): one row per
// user_id in the appeals sheet, accumulating a newest-first message log,
// driving status transitions (and the bit-exact cell colors the specialist
// UI reads), and exposing the specialist-reply scan the response monitor
// polls.
//
// Grounded on the teacher's regexp-driven text parsing in agent/loop.go
// (rememberRE is a compiled package-level regexp matched against a fixed
// line shape) for the retention-pruning pass in retention.go, and on
// internal/sheets for every read/write.
package appeals

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/local/supportbot/internal/errs"
	"github.com/local/supportbot/internal/obslog"
	"github.com/local/supportbot/internal/sheets"
)

const (
	colPartnerCode = 0
	colPhone       = 1
	colName        = 2
	colUserID      = 3
	colMessages    = 4
	colStatus      = 5
	colReply       = 6
	colUpdatedAt   = 7

	dataRange = "A2:H"

	timestampLayout = "2006-01-02 15:04:05"
)

// Status is one of the three appeal lifecycle states (spec §3).
type Status string

const (
	StatusNew      Status = "new"
	StatusInWork   Status = "in_work"
	StatusResolved Status = "resolved"
)

func (s Status) color() sheets.Color {
	switch s {
	case StatusInWork:
		return sheets.ColorWarmPink
	case StatusResolved:
		return sheets.ColorPaleGreen
	default:
		return sheets.ColorNone
	}
}

// Identity is the partner_code/phone/name triple written when an appeal row
// is first created. Only used on row creation; an existing row's identity
// columns are left alone (the auth sheet, not the appeals sheet, is the
// system of record for identity).
type Identity struct {
	PartnerCode string
	Phone       string
	Name        string
}

// SpecialistReply is one row the response monitor must deliver.
type SpecialistReply struct {
	UserID string
	Reply  string
	RowID  int // 1-based sheet row number, for ClearSpecialistReply
}

// Service is the C4 appeals service.
type Service struct {
	gw     *sheets.Gateway
	now    func() time.Time
	logger zerolog.Logger

	// rowLocks stripes a mutex per user_id so the find-or-append sequence in
	// AppendUserMessage/AppendAIReply/SetStatus is atomic from this
	// process's point of view: the sheets gateway only serializes individual
	// RPCs, not a read-then-write sequence, and two concurrent appends for a
	// brand new user_id would otherwise race into two separate rows.
	rowLocks sync.Map // userID -> *sync.Mutex
}

// New builds a Service backed by gw.
func New(gw *sheets.Gateway, logger zerolog.Logger) *Service {
	return &Service{gw: gw, now: time.Now, logger: logger.With().Str("component", "c4.appeals").Logger()}
}

func (s *Service) lockFor(userID string) *sync.Mutex {
	v, _ := s.rowLocks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// AppendUserMessage locates user_id's row (appending a fresh one if absent),
// prepends a timestamped entry to accumulated_messages, prunes entries
// older than 30 days, and sets updated_at. Status is never touched here.
func (s *Service) AppendUserMessage(ctx context.Context, userID string, identity Identity, text string) error {
	return s.appendEntry(ctx, userID, identity, text)
}

// AppendAIReply appends an assistant-marker entry to accumulated_messages.
// The marker itself (not the row-creation path) is what distinguishes it
// from AppendUserMessage; a reply never creates a row on its own since a
// user message always precedes it in the normal flow, but we still handle
// row-absent defensively the same way.
func (s *Service) AppendAIReply(ctx context.Context, userID string, text string) error {
	return s.appendEntry(ctx, userID, Identity{}, "[assistant] "+text)
}

func (s *Service) appendEntry(ctx context.Context, userID string, identity Identity, text string) error {
	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	rows, err := s.gw.ReadRows(ctx, sheets.EndpointAppeals, dataRange)
	if err != nil {
		return err
	}
	now := s.now()
	entry := now.UTC().Format(timestampLayout) + ": " + text

	idx, found := findRow(rows, userID)
	if !found {
		row := []string{
			identity.PartnerCode,
			identity.Phone,
			identity.Name,
			userID,
			entry,
			string(StatusNew),
			"",
			now.UTC().Format(time.RFC3339),
		}
		return s.gw.AppendRow(ctx, sheets.EndpointAppeals, row)
	}

	rowNum := idx + 2 // dataRange starts at row 2
	existing := cell(rows[idx], colMessages)
	unpruned := entry + "\n" + existing
	merged := pruneOldEntries(unpruned, now)
	if dropped := countEntries(unpruned) - countEntries(merged); dropped > 0 {
		// Open Question #3 (spec §9): retention pruning is silent from the
		// sheet's point of view, but we keep an internal trace in case
		// audit is revisited later, tagged with a correlation id so a
		// single prune event across this row's cells can be found again.
		obslog.WithUserID(s.logger.Debug().Str("prune_id", uuid.NewString()), userID).
			Int("dropped_entries", dropped).
			Msg("pruned appeal entries older than 30 days")
	}
	updates := []sheets.CellUpdate{
		{A1: fmt.Sprintf("E%d", rowNum), Value: merged},
		{A1: fmt.Sprintf("H%d", rowNum), Value: now.UTC().Format(time.RFC3339)},
	}
	return s.gw.BatchWriteCells(ctx, sheets.EndpointAppeals, updates)
}

// SetStatus writes the status cell and applies the matching background
// color. Idempotent: calling it twice with the same status writes the same
// values twice, which is indistinguishable from writing it once.
func (s *Service) SetStatus(ctx context.Context, userID string, status Status) error {
	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	rows, err := s.gw.ReadRows(ctx, sheets.EndpointAppeals, dataRange)
	if err != nil {
		return err
	}
	idx, found := findRow(rows, userID)
	if !found {
		return errs.NewNotFound("appeals: no row for user")
	}
	rowNum := idx + 2

	now := s.now()
	updates := []sheets.CellUpdate{
		{A1: fmt.Sprintf("F%d", rowNum), Value: string(status)},
		{A1: fmt.Sprintf("H%d", rowNum), Value: now.UTC().Format(time.RFC3339)},
	}
	if err := s.gw.BatchWriteCells(ctx, sheets.EndpointAppeals, updates); err != nil {
		return err
	}
	return s.gw.FormatCell(ctx, sheets.EndpointAppeals, fmt.Sprintf("F%d", rowNum), status.color())
}

// ScanForSpecialistReplies returns every row whose specialist_reply column
// is non-empty.
func (s *Service) ScanForSpecialistReplies(ctx context.Context) ([]SpecialistReply, error) {
	rows, err := s.gw.ReadRows(ctx, sheets.EndpointAppeals, dataRange)
	if err != nil {
		return nil, err
	}
	var out []SpecialistReply
	for i, row := range rows {
		reply := strings.TrimSpace(cell(row, colReply))
		if reply == "" {
			continue
		}
		out = append(out, SpecialistReply{
			UserID: cell(row, colUserID),
			Reply:  reply,
			RowID:  i + 2,
		})
	}
	return out, nil
}

// ClearSpecialistReply empties the specialist_reply cell for the given row.
func (s *Service) ClearSpecialistReply(ctx context.Context, rowID int) error {
	return s.gw.WriteCell(ctx, sheets.EndpointAppeals, fmt.Sprintf("G%d", rowID), "")
}

// HasAnyRecords is a cheap existence check the response monitor uses to
// short-circuit an empty sheet instead of scanning it every tick.
func (s *Service) HasAnyRecords(ctx context.Context) (bool, error) {
	rows, err := s.gw.ReadRows(ctx, sheets.EndpointAppeals, dataRange)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func findRow(rows [][]string, userID string) (int, bool) {
	for i, row := range rows {
		if cell(row, colUserID) == userID {
			return i, true
		}
	}
	return 0, false
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
