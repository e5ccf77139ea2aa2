// Package health implements the Health Monitor and Polling Watchdog (C8):
// a slow periodic prober for the two external collaborators (sheets,
// messenger) and a fast liveness check over the messenger's long-poll loop
// (spec §4.8).
//
// Grounded on the teacher's internal/health-style periodic self-check (the
// gateway command's heartbeat goroutine in cmd/picobot/main.go), generalized
// from a single liveness counter into per-contour failure tallies that
// escalate into the sheets gateway's own cache-invalidation hook.
package health

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/supportbot/internal/heartbeat"
	"github.com/local/supportbot/internal/sheets"
	"github.com/local/supportbot/internal/tasks"
)

// MessengerPinger is the narrow capability the monitor needs from the
// messenger adapter to probe liveness without a real user round-trip.
type MessengerPinger interface {
	PingIdentity(ctx context.Context) error
}

// Notifier lets the watchdog deliver a best-effort admin alert before it
// exits the process (spec §6's optional ADMIN_USER_ID).
type Notifier interface {
	SendAdminNotification(userID, text string)
}

const (
	sheetFailureThreshold     = 3
	messengerFailureThreshold = 5
	probeInterval             = 300 * time.Second
	watchdogInterval          = 30 * time.Second
	staleAfter                = 120 * time.Second
)

var contours = []sheets.Endpoint{sheets.EndpointAuth, sheets.EndpointAppeals, sheets.EndpointPromotions}

// Monitor runs the slow collaborator prober (RunProbes); the fast heartbeat
// check is the separate Watchdog type.
type Monitor struct {
	gw        *sheets.Gateway
	messenger MessengerPinger
	hb        *heartbeat.Heartbeat
	logger    zerolog.Logger

	sheetFailures     map[sheets.Endpoint]int
	messengerFailures int
}

// New builds a Monitor. gw, messenger, and hb must all be non-nil.
func New(gw *sheets.Gateway, messenger MessengerPinger, hb *heartbeat.Heartbeat, logger zerolog.Logger) *Monitor {
	fails := make(map[sheets.Endpoint]int, len(contours))
	for _, ep := range contours {
		fails[ep] = 0
	}
	return &Monitor{
		gw:            gw,
		messenger:     messenger,
		hb:            hb,
		logger:        logger.With().Str("component", "c8.health").Logger(),
		sheetFailures: fails,
	}
}

// RunProbes is the slow collaborator health loop (spec §4.8: "every 300s,
// pings the messenger identity endpoint and performs the cheapest possible
// read against each of the three sheet contours").
func (m *Monitor) RunProbes(ctx context.Context) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeSheets(ctx)
			m.probeMessenger(ctx)
		}
	}
}

func (m *Monitor) probeSheets(ctx context.Context) {
	for _, ep := range contours {
		err := m.gw.Ping(ctx, ep)
		if err == nil {
			m.sheetFailures[ep] = 0
			continue
		}
		m.sheetFailures[ep]++
		m.logger.Warn().Str("contour", string(ep)).Int("consecutive_failures", m.sheetFailures[ep]).Err(err).Msg("sheet contour probe failed")
		if m.sheetFailures[ep] >= sheetFailureThreshold {
			m.logger.Error().Str("contour", string(ep)).Msg("invalidating sheets client cache after repeated probe failures")
			m.gw.InvalidateClientCache()
			m.sheetFailures[ep] = 0
		}
	}
}

func (m *Monitor) probeMessenger(ctx context.Context) {
	if err := m.messenger.PingIdentity(ctx); err != nil {
		m.messengerFailures++
		m.logger.Warn().Int("consecutive_failures", m.messengerFailures).Err(err).Msg("messenger identity probe failed")
		if m.messengerFailures >= messengerFailureThreshold {
			m.logger.Error().Msg("messenger probe failures reached escalation threshold")
		}
		return
	}
	m.messengerFailures = 0
}

// Watchdog watches the shared heartbeat and forces an exit if the
// messenger's long-poll loop has gone silent for too long (spec §4.8,
// §9: "if the heartbeat is older than 120s, log CRITICAL with a full state
// snapshot, cancel all tracked tasks, and exit the process non-zero").
type Watchdog struct {
	hb       *heartbeat.Heartbeat
	tracker  *tasks.Tracker
	notifier Notifier
	adminID  string
	logger   zerolog.Logger

	exit func(code int)
}

// NewWatchdog builds a Watchdog. adminID may be empty, in which case no
// admin notification is attempted.
func NewWatchdog(hb *heartbeat.Heartbeat, tracker *tasks.Tracker, notifier Notifier, adminID string, logger zerolog.Logger) *Watchdog {
	return &Watchdog{
		hb:       hb,
		tracker:  tracker,
		notifier: notifier,
		adminID:  adminID,
		logger:   logger.With().Str("component", "c8.watchdog").Logger(),
		exit:     os.Exit,
	}
}

// Run is the 30s liveness check loop.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if since := w.hb.Since(); since >= staleAfter {
				w.onStall(since)
				return
			}
		}
	}
}

func (w *Watchdog) onStall(since time.Duration) {
	snapshot := w.snapshot()
	w.logger.Error().
		Dur("heartbeat_age", since).
		Str("state", snapshot).
		Msg("CRITICAL: messenger heartbeat stale, forcing shutdown")

	w.tracker.Shutdown(10 * time.Second)

	if w.adminID != "" && w.notifier != nil {
		w.notifier.SendAdminNotification(w.adminID, fmt.Sprintf("coordinator watchdog: heartbeat stale for %s, process exiting", since))
	}

	w.exit(1)
}

func (w *Watchdog) snapshot() string {
	recs := w.tracker.Records()
	out := ""
	for i, r := range recs {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%s", r.Name, r.State)
	}
	return out
}
