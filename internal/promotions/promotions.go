// Package promotions implements the Promotions Broadcaster (C7): a 15-minute
// scan of the promotions sheet that fans each active, not-yet-sent promotion
// out to the authorized audience, deduplicated per (promotion_id, user_id)
// by an append-only on-disk ledger.
//
// Grounded on internal/sheets for the read side and on the teacher's
// os.WriteFile/append-mode idiom (internal/agent's memory-note persistence)
// for the ledger, generalized to an explicit fsync after every write since the
// at-most-once-per-pair invariant here must survive a crash, unlike the
// teacher's best-effort notes.
package promotions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/supportbot/internal/aisession"
	"github.com/local/supportbot/internal/obslog"
	"github.com/local/supportbot/internal/sheets"
)

const (
	colReleaseDate = 0
	colTitle       = 1
	colDescription = 2
	colStatus      = 3
	colStartDate   = 4
	colEndDate     = 5
	colContentURL  = 6
	colDeepLink    = 7

	dataRange = "A2:H"

	scanInterval    = 15 * time.Minute
	deliveryWorkers = 4
)

// Status mirrors the promotions sheet's status column.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Promotion is a row of the promotions sheet. ID is a stable content hash
// over the fields the spec names (title, description, start_date, end_date)
// rather than a random identifier, so the same logical promotion always
// resolves to the same ledger key even if the sheet is re-read from
// scratch (spec §3: "id is a stable content hash").
type Promotion struct {
	ID          string
	Title       string
	Description string
	Status      Status
	StartDate   string
	EndDate     string
	ContentURL  string
	DeepLink    string
}

func promotionID(title, description, startDate, endDate string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(description))
	h.Write([]byte{0})
	h.Write([]byte(startDate))
	h.Write([]byte{0})
	h.Write([]byte(endDate))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// AuthAudience is the narrow capability the auth service exposes: the
// current set of authorized user_ids. Kept narrow so this package doesn't
// import the whole of internal/auth's surface.
type AuthAudience interface {
	ListAuthorizedUserIDs(ctx context.Context) ([]string, error)
}

// Sender is the narrow messenger capability a delivery needs: one message,
// optionally carrying media bytes and a deep link.
type Sender interface {
	SendPromotion(ctx context.Context, userID string, p Promotion, media []byte) error
}

// Broadcaster is the C7 component.
type Broadcaster struct {
	gw       *sheets.Gateway
	audience AuthAudience
	sender   Sender
	ledger   *ledger
	media    *mediaCache
	logger   zerolog.Logger

	jobs chan deliveryJob
	done chan struct{}
}

type deliveryJob struct {
	promotion Promotion
	userID    string
}

// New builds a Broadcaster. ledgerPath is the append-only SENT ledger file;
// it is read once at startup to seed the in-memory dedup set (spec scenario
// 4: "on restart, broadcaster tick delivers X to C only").
func New(gw *sheets.Gateway, audience AuthAudience, sender Sender, ledgerPath string, mediaCacheSize int, logger zerolog.Logger) (*Broadcaster, error) {
	l, err := openLedger(ledgerPath)
	if err != nil {
		return nil, err
	}
	b := &Broadcaster{
		gw:       gw,
		audience: audience,
		sender:   sender,
		ledger:   l,
		media:    newMediaCache(mediaCacheSize),
		logger:   logger.With().Str("component", "c7.promotions").Logger(),
		jobs:     make(chan deliveryJob),
		done:     make(chan struct{}),
	}
	for i := 0; i < deliveryWorkers; i++ {
		go b.deliveryWorker()
	}
	return b, nil
}

// Close stops the delivery workers and closes the ledger file.
func (b *Broadcaster) Close() error {
	close(b.done)
	return b.ledger.close()
}

// ListActive returns every row currently marked active, satisfying
// aisession.PromotionLookup (spec §4.5's get_active_promotions tool) without
// aisession importing this package — the dependency runs the other way,
// breaking the C5<->C7 cycle per spec §9.
func (b *Broadcaster) ListActive(ctx context.Context) ([]aisession.ActivePromotion, error) {
	promos, err := b.readActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]aisession.ActivePromotion, 0, len(promos))
	for _, p := range promos {
		out = append(out, aisession.ActivePromotion{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Link:        p.DeepLink,
		})
	}
	return out, nil
}

func (b *Broadcaster) readActive(ctx context.Context) ([]Promotion, error) {
	rows, err := b.gw.ReadRows(ctx, sheets.EndpointPromotions, dataRange)
	if err != nil {
		return nil, err
	}
	var out []Promotion
	for _, row := range rows {
		status := Status(cell(row, colStatus))
		if status != StatusActive {
			continue
		}
		title := cell(row, colTitle)
		desc := cell(row, colDescription)
		start := cell(row, colStartDate)
		end := cell(row, colEndDate)
		out = append(out, Promotion{
			ID:          promotionID(title, desc, start, end),
			Title:       title,
			Description: desc,
			Status:      status,
			StartDate:   start,
			EndDate:     end,
			ContentURL:  cell(row, colContentURL),
			DeepLink:    cell(row, colDeepLink),
		})
	}
	return out, nil
}

// Run blocks, scanning every 15 minutes until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

// tick performs one scan-and-enqueue pass (spec §4.7 steps 1-2).
func (b *Broadcaster) tick(ctx context.Context) {
	promos, err := b.readActive(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("reading active promotions")
		return
	}
	if len(promos) == 0 {
		return
	}
	userIDs, err := b.audience.ListAuthorizedUserIDs(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("resolving authorized audience")
		return
	}

	for _, p := range promos {
		for _, uid := range userIDs {
			if b.ledger.has(p.ID, uid) {
				continue
			}
			select {
			case b.jobs <- deliveryJob{promotion: p, userID: uid}:
			case <-ctx.Done():
				return
			case <-b.done:
				return
			}
		}
	}
}

func (b *Broadcaster) deliveryWorker() {
	for {
		select {
		case job := <-b.jobs:
			b.deliver(job)
		case <-b.done:
			return
		}
	}
}

func (b *Broadcaster) deliver(job deliveryJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var media []byte
	if job.promotion.ContentURL != "" {
		m, err := b.media.get(ctx, job.promotion.ContentURL)
		if err != nil {
			obslog.WithUserID(b.logger.Error(), job.userID).
				Str("promotion_id", job.promotion.ID).Err(err).
				Msg("fetching promotion media, sending without it")
		} else {
			media = m
		}
	}

	if err := b.sender.SendPromotion(ctx, job.userID, job.promotion, media); err != nil {
		obslog.WithUserID(b.logger.Error(), job.userID).
			Str("promotion_id", job.promotion.ID).Err(err).
			Msg("delivering promotion")
		return
	}

	if err := b.ledger.record(job.promotion.ID, job.userID); err != nil {
		// The send succeeded but the ledger write failed: spec §4.7 accepts
		// a duplicate send on the next tick over losing the delivery, so we
		// only log here.
		obslog.WithUserID(b.logger.Error(), job.userID).
			Str("promotion_id", job.promotion.ID).Err(err).
			Msg("recording SENT ledger entry, a retry will re-send")
	}
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
