// Package router implements the Message Router (C10): the coordinator's
// single inbound dispatch loop, draining the messenger's Updates() channel
// and fanning each event out to auth, appeals, and the AI session manager,
// then streaming the reply back out through a rate limiter.
//
// Grounded on the teacher's agent/loop.go dispatch shape (one goroutine
// draining a channel of inbound events, a switch over message kind, tool
// round-trips streamed back to the channel's sender) generalized from the
// teacher's single hub fan-out into the four-branch (/start, web form,
// contact-specialist intent, ordinary message) shape spec §4.10 names.
package router

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/local/supportbot/internal/aisession"
	"github.com/local/supportbot/internal/appeals"
	"github.com/local/supportbot/internal/auth"
	"github.com/local/supportbot/internal/heartbeat"
	"github.com/local/supportbot/internal/messenger"
	"github.com/local/supportbot/internal/obslog"
	"github.com/local/supportbot/internal/ratelimit"
)

// contactSpecialistPhrases are the plain-text ways a user can ask for a
// human, in addition to the messenger's inline "contact_specialist" button
// (spec §4.10 step 5).
var contactSpecialistPhrases = []string{
	"contact specialist",
	"talk to a human",
	"speak to a person",
	"human support",
}

// Router is the C10 component.
type Router struct {
	messenger messenger.Messenger
	auth      *auth.Service
	appeals   *appeals.Service
	sessions  *aisession.Manager
	limiter   *ratelimit.KeyedLimiter
	hb        *heartbeat.Heartbeat
	webFormURL string
	logger    zerolog.Logger
}

// New builds a Router. hb may be nil if no watchdog is wired (tests).
func New(
	m messenger.Messenger,
	authSvc *auth.Service,
	appealsSvc *appeals.Service,
	sessions *aisession.Manager,
	limiter *ratelimit.KeyedLimiter,
	hb *heartbeat.Heartbeat,
	webFormURL string,
	logger zerolog.Logger,
) *Router {
	return &Router{
		messenger:  m,
		auth:       authSvc,
		appeals:    appealsSvc,
		sessions:   sessions,
		limiter:    limiter,
		hb:         hb,
		webFormURL: webFormURL,
		logger:     logger.With().Str("component", "c10.router").Logger(),
	}
}

// Run drains Updates() until the channel closes or ctx is cancelled,
// dispatching each event on its own goroutine so a slow AI turn for one
// user never blocks the inbound loop for everyone else.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-r.messenger.Updates():
			if !ok {
				return
			}
			if r.hb != nil {
				r.hb.Touch()
			}
			go r.handle(ctx, in)
		}
	}
}

func (r *Router) handle(ctx context.Context, in messenger.Inbound) {
	switch {
	case in.IsStart:
		r.handleStart(ctx, in.UserID)
	case in.WebForm != nil:
		r.handleWebForm(ctx, in)
	case isContactSpecialistIntent(in.Text):
		if !r.requireAuthorized(ctx, in.UserID) {
			return
		}
		r.handleContactSpecialist(ctx, in.UserID)
	default:
		if !r.requireAuthorized(ctx, in.UserID) {
			return
		}
		r.handleMessage(ctx, in)
	}
}

// requireAuthorized implements spec §4.10 step 4: every non-/start,
// non-web-form message requires authorization; on failure (or on an error
// checking it) the user is prompted to authenticate instead of being routed
// to the appeal/AI paths.
func (r *Router) requireAuthorized(ctx context.Context, userID string) bool {
	authorized, err := r.auth.IsAuthorized(ctx, userID)
	if err != nil {
		obslog.WithUserID(r.logger.Error(), userID).Err(err).Msg("checking authorization")
		r.send(ctx, userID, func() error { return r.messenger.SendWebFormPrompt(ctx, userID, r.webFormURL) })
		return false
	}
	if !authorized {
		r.send(ctx, userID, func() error { return r.messenger.SendWebFormPrompt(ctx, userID, r.webFormURL) })
		return false
	}
	return true
}

func isContactSpecialistIntent(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, phrase := range contactSpecialistPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// handleStart implements spec §4.10 step 2: an unauthorized /start gets the
// web-form prompt, an authorized one gets the main menu.
func (r *Router) handleStart(ctx context.Context, userID string) {
	authorized, err := r.auth.IsAuthorized(ctx, userID)
	if err != nil {
		obslog.WithUserID(r.logger.Error(), userID).Err(err).Msg("checking authorization on /start")
		r.send(ctx, userID, func() error { return r.messenger.SendMainMenu(ctx, userID) })
		return
	}
	if !authorized {
		r.send(ctx, userID, func() error { return r.messenger.SendWebFormPrompt(ctx, userID, r.webFormURL) })
		return
	}
	r.send(ctx, userID, func() error { return r.messenger.SendMainMenu(ctx, userID) })
}

// handleWebForm implements spec §4.10 step 3: bind the submitted identity
// to this user_id, then show the main menu regardless of whether the bind
// was new or already-bound.
func (r *Router) handleWebForm(ctx context.Context, in messenger.Inbound) {
	_, err := r.auth.Bind(ctx, in.WebForm.PartnerCode, in.WebForm.PartnerPhone, in.UserID)
	if err != nil {
		obslog.WithUserID(r.logger.Warn(), in.UserID).Err(err).Msg("web form bind failed")
		r.send(ctx, in.UserID, func() error {
			return r.messenger.SendText(ctx, in.UserID, "We couldn't verify that partner code and phone number. Please check them and try again.")
		})
		return
	}
	r.send(ctx, in.UserID, func() error { return r.messenger.SendMainMenu(ctx, in.UserID) })
}

// handleContactSpecialist implements spec §4.10 step 5: mark the appeal
// in_work so the sheet-side specialist queue picks it up.
func (r *Router) handleContactSpecialist(ctx context.Context, userID string) {
	if err := r.appeals.SetStatus(ctx, userID, appeals.StatusInWork); err != nil {
		obslog.WithUserID(r.logger.Error(), userID).Err(err).Msg("setting appeal status in_work")
	}
	r.send(ctx, userID, func() error {
		return r.messenger.SendText(ctx, userID, "A specialist has been notified and will follow up here shortly.")
	})
}

// handleMessage implements spec §4.10 step 4-6: the ordinary chat path —
// record the message, dispatch an AI turn, stream its events back, and
// offer escalation when the turn's reply warrants it.
func (r *Router) handleMessage(ctx context.Context, in messenger.Inbound) {
	if err := r.appeals.AppendUserMessage(ctx, in.UserID, appeals.Identity{}, in.Text); err != nil {
		obslog.WithUserID(r.logger.Error(), in.UserID).Err(err).Msg("recording user message")
	}

	events := r.sessions.Dispatch(in.UserID, in.Text)
	for ev := range events {
		switch ev.Kind {
		case aisession.TurnPartial:
			r.send(ctx, in.UserID, func() error { return r.messenger.SendText(ctx, in.UserID, ev.Text) })
		case aisession.TurnFinal:
			if err := r.appeals.AppendAIReply(ctx, in.UserID, ev.Text); err != nil {
				obslog.WithUserID(r.logger.Error(), in.UserID).Err(err).Msg("recording AI reply")
			}
			if ev.Escalate {
				r.send(ctx, in.UserID, func() error { return r.messenger.SendEscalationOffer(ctx, in.UserID) })
			}
		case aisession.TurnFailed:
			// The error text already arrived as the turn's last TurnPartial
			// and was sent above; nothing more to deliver.
		case aisession.TurnCancelled:
			// A newer message superseded this turn (spec §4.5); nothing to
			// deliver, the superseding Dispatch call owns the reply.
		}
	}
}

// send enforces the outbound rate limit (spec §4.10 step 7: ≤25/s global,
// ≤1/s per chat) before calling fn.
func (r *Router) send(ctx context.Context, userID string, fn func() error) {
	if err := r.limiter.Wait(ctx, userID); err != nil {
		return
	}
	if err := fn(); err != nil {
		obslog.WithUserID(r.logger.Warn(), userID).Err(err).Msg("outbound send failed")
	}
}
