// Package responsemonitor implements the Response Monitor (C6): a 60s
// ticker that scans the appeals sheet for specialist replies and delivers
// each exactly-once-intended (at-least-once in practice, idempotent on the
// sheet side) via the messenger.
//
// Grounded on the teacher's cron-fired callback shape
// (cron.NewScheduler(func(job cron.Job) { ... hub.In <- ... })): a
// ticker-driven goroutine performing one scan-and-act pass per tick.
package responsemonitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/supportbot/internal/appeals"
	"github.com/local/supportbot/internal/obslog"
	"github.com/local/supportbot/internal/ratelimit"
)

const tickInterval = 60 * time.Second

// Sender is the narrow messenger capability this component needs: deliver
// one text message to a user_id. Kept narrow (rather than depending on the
// full messenger.Messenger interface) so this package cannot accidentally
// read inbound updates.
type Sender interface {
	SendText(ctx context.Context, userID, text string) error
}

// Monitor is the C6 component.
type Monitor struct {
	appeals *appeals.Service
	sender  Sender
	limiter *ratelimit.SimpleLimiter
	logger  zerolog.Logger
}

// New builds a Monitor. Sends are throttled to <=1/s per spec §4.6.
func New(appealsSvc *appeals.Service, sender Sender, logger zerolog.Logger) *Monitor {
	return &Monitor{
		appeals: appealsSvc,
		sender:  sender,
		limiter: ratelimit.NewSimpleLimiter(1),
		logger:  logger.With().Str("component", "c6.responsemonitor").Logger(),
	}
}

// Run blocks, ticking every 60s until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick performs one scan-and-deliver pass. Delivery is at-least-once: if
// the sheet write that clears the reply cell fails after a successful
// send, the next tick resends (spec §4.6 accepts this, and requires the
// marker-append step to tolerate duplicates, which appeals.AppendAIReply
// does by construction — it only ever appends, never overwrites).
func (m *Monitor) tick(ctx context.Context) {
	has, err := m.appeals.HasAnyRecords(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("checking for appeal records")
		return
	}
	if !has {
		return
	}

	replies, err := m.appeals.ScanForSpecialistReplies(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("scanning for specialist replies")
		return
	}

	for _, r := range replies {
		if ctx.Err() != nil {
			return
		}
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}
		m.deliver(ctx, r)
	}
}

func (m *Monitor) deliver(ctx context.Context, r appeals.SpecialistReply) {
	if err := m.sender.SendText(ctx, r.UserID, r.Reply); err != nil {
		obslog.WithUserID(m.logger.Error(), r.UserID).Err(err).Msg("sending specialist reply")
		return
	}
	if err := m.appeals.AppendAIReply(ctx, r.UserID, "specialist replied"); err != nil {
		obslog.WithUserID(m.logger.Error(), r.UserID).Err(err).Msg("recording specialist-reply marker")
	}
	if err := m.appeals.SetStatus(ctx, r.UserID, appeals.StatusResolved); err != nil {
		obslog.WithUserID(m.logger.Error(), r.UserID).Err(err).Msg("setting status resolved")
	}
	if err := m.appeals.ClearSpecialistReply(ctx, r.RowID); err != nil {
		obslog.WithUserID(m.logger.Error(), r.UserID).Err(err).Msg("clearing specialist reply cell")
	}
}
