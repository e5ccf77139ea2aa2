// Package auth implements the partner-identity authorization service: a
// time-bounded cache in front of the auth sheet, and the bind operation that
// links a web-form submission to a messenger user_id.
//
// Grounded in the teacher's config-loading idiom (stdlib string/regex
// manipulation, no external identity library) for phone normalization. The
// on-disk cache (internal/auth/cache.go) is a sqlite table upserted one row
// per verdict; it is not a whole-file JSON map.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/local/supportbot/internal/errs"
	"github.com/local/supportbot/internal/sheets"
)

const (
	colPartnerCode = 0
	colPhone       = 1
	colName        = 2
	colUserID      = 3
	colStatus      = 4
	colTimestamp   = 5

	statusAuthorized    = "authorized"
	statusNotAuthorized = "not authorized"

	dataRange = "A2:F"
)

// BindResult reports what bind actually did.
type BindResult int

const (
	// BindSucceeded means a previously unauthorized row was just bound.
	BindSucceeded BindResult = iota
	// BindAlreadyBound means the row was already bound to this exact user,
	// so bind was a no-op (spec: "bind is idempotent").
	BindAlreadyBound
)

// Service is the C3 auth service.
type Service struct {
	gw    *sheets.Gateway
	cache *cache
	now   func() time.Time
}

// New builds a Service backed by gw, persisting its cache to cachePath (empty
// disables persistence; still works purely in memory).
func New(gw *sheets.Gateway, cachePath string) *Service {
	return &Service{gw: gw, cache: newCache(cachePath), now: time.Now}
}

// IsAuthorized reports whether user_id is currently authorized, consulting
// the cache first and only reloading from the auth sheet on a miss or after
// the 24h TTL expires.
func (s *Service) IsAuthorized(ctx context.Context, userID string) (bool, error) {
	now := s.now()
	if entry, ok := s.cache.get(userID, now); ok {
		return entry.Authorized, nil
	}

	rows, err := s.gw.ReadRows(ctx, sheets.EndpointAuth, dataRange)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if cell(row, colUserID) != userID {
			continue
		}
		authorized := cell(row, colStatus) == statusAuthorized
		s.cache.set(userID, authorized, now)
		return authorized, nil
	}
	// No row bound to this user yet: not an error, just unauthorized.
	s.cache.set(userID, false, now)
	return false, nil
}

// Bind links userID to the auth-sheet row matching partnerCode and phone.
// Idempotent: re-binding the same user to the same partner is a no-op that
// still reports BindSucceeded semantics to the caller via BindAlreadyBound.
func (s *Service) Bind(ctx context.Context, partnerCode, phone, userID string) (BindResult, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return 0, err
	}

	rows, err := s.gw.ReadRows(ctx, sheets.EndpointAuth, dataRange)
	if err != nil {
		return 0, err
	}

	for i, row := range rows {
		if !strings.EqualFold(cell(row, colPartnerCode), partnerCode) {
			continue
		}
		existingPhone, perr := NormalizePhone(cell(row, colPhone))
		if perr != nil || existingPhone != normalized {
			continue
		}

		rowNum := i + 2 // dataRange starts at row 2
		if cell(row, colUserID) == userID && cell(row, colStatus) == statusAuthorized {
			return BindAlreadyBound, nil
		}

		now := s.now()
		updates := []sheets.CellUpdate{
			{A1: fmt.Sprintf("D%d", rowNum), Value: userID},
			{A1: fmt.Sprintf("E%d", rowNum), Value: statusAuthorized},
			{A1: fmt.Sprintf("F%d", rowNum), Value: now.UTC().Format(time.RFC3339)},
		}
		if err := s.gw.BatchWriteCells(ctx, sheets.EndpointAuth, updates); err != nil {
			return 0, err
		}
		s.cache.set(userID, true, now)
		return BindSucceeded, nil
	}

	return 0, errs.NewNotFound("no auth-sheet row matches partner_code and phone")
}

// ListAuthorizedUserIDs returns every user_id currently bound and authorized.
// Used by the promotions broadcaster to resolve its send audience; always
// reads the sheet directly since the per-user cache has no reverse index.
func (s *Service) ListAuthorizedUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.gw.ReadRows(ctx, sheets.EndpointAuth, dataRange)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, row := range rows {
		if cell(row, colStatus) != statusAuthorized {
			continue
		}
		if uid := cell(row, colUserID); uid != "" {
			out = append(out, uid)
		}
	}
	return out, nil
}

// PartnerInfo is what the lookup_partner assistant tool surfaces back to the
// model: the identity bound to a partner_code, nothing more.
type PartnerInfo struct {
	PartnerCode string
	Name        string
	Authorized  bool
}

// LookupPartner returns the identity bound to partnerCode, regardless of
// whether that row is currently authorized (the tool itself reports
// Authorized so the assistant can distinguish "unknown partner" from "known
// but not yet bound"). Not cached: a low-frequency tool call, not a hot path
// like IsAuthorized.
func (s *Service) LookupPartner(ctx context.Context, partnerCode string) (PartnerInfo, bool, error) {
	rows, err := s.gw.ReadRows(ctx, sheets.EndpointAuth, dataRange)
	if err != nil {
		return PartnerInfo{}, false, err
	}
	for _, row := range rows {
		if !strings.EqualFold(cell(row, colPartnerCode), partnerCode) {
			continue
		}
		return PartnerInfo{
			PartnerCode: cell(row, colPartnerCode),
			Name:        cell(row, colName),
			Authorized:  cell(row, colStatus) == statusAuthorized,
		}, true, nil
	}
	return PartnerInfo{}, false, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
