package aisession

import (
	"context"
	"strings"
	"time"

	"github.com/local/supportbot/internal/vendorllm"
)

// TurnEventKind distinguishes the events Dispatch's channel emits.
type TurnEventKind int

const (
	// TurnPartial carries a batched chunk of assistant text to stream to
	// the user.
	TurnPartial TurnEventKind = iota
	// TurnFinal carries the complete assistant reply and the escalation
	// classification; it is always the last event on a completed turn.
	TurnFinal
	// TurnCancelled means a newer message superseded this turn before it
	// finished (spec §4.5's "latest supersedes" policy).
	TurnCancelled
	// TurnFailed means the turn ended with a user-visible error message,
	// already emitted as the final TurnPartial/TurnFinal text.
	TurnFailed
)

// TurnEvent is one item the router drains from Dispatch's channel.
type TurnEvent struct {
	Kind     TurnEventKind
	Text     string
	Escalate bool
	Err      error
}

const inactivityTimeout = 60 * time.Second

// Dispatch starts (or supersedes) a turn for userID and returns a channel
// of events. Non-blocking: the turn runs on its own goroutine so a slow or
// streaming LLM call never blocks the caller (the router's inbound-message
// loop).
//
// Single-flight policy (spec §4.5): the new turn's goroutine first sets the
// cancel token of any turn already in flight for this session, then blocks
// on turnMu — which the in-flight turn's goroutine holds — until that turn
// observes cancellation and releases it; only then does the new turn start.
// The wait happens on the new turn's goroutine, never in Dispatch itself.
func (m *Manager) Dispatch(userID, userMessage string) <-chan TurnEvent {
	sess := m.sessionFor(userID)
	out := make(chan TurnEvent, 8)
	go m.runTurn(sess, userMessage, out)
	return out
}

func (m *Manager) runTurn(sess *Session, userMessage string, out chan<- TurnEvent) {
	sess.cancelMu.Lock()
	if sess.cancel != nil {
		sess.cancel()
	}
	sess.cancelMu.Unlock()

	sess.turnMu.Lock()
	defer sess.turnMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	sess.cancelMu.Lock()
	sess.cancel = cancel
	sess.cancelMu.Unlock()
	defer func() {
		sess.cancelMu.Lock()
		sess.cancel = nil
		sess.cancelMu.Unlock()
		cancel()
	}()

	defer close(out)
	sess.touch(time.Now())

	// Step 1 of a turn, per spec §4.5: append the user message to the
	// thread unconditionally, even if the turn itself is later cancelled —
	// the next turn picks up where this one left off.
	sess.history = append(sess.history, vendorllm.Message{Role: vendorllm.RoleUser, Content: userMessage})

	status, finalText := m.attempt(ctx, sess, out)

	switch status {
	case TurnCancelled:
		out <- TurnEvent{Kind: TurnCancelled}
	case TurnFailed:
		out <- TurnEvent{Kind: TurnFailed, Text: finalText}
	default:
		escalate := detectEscalation(finalText)
		out <- TurnEvent{Kind: TurnFinal, Text: finalText, Escalate: escalate}
		m.history.append(historyRecord{
			UserID:      sess.userID,
			UserText:    userMessage,
			ReplyText:   finalText,
			Escalate:    escalate,
			CompletedAt: time.Now(),
		})
	}
}

// attempt runs the tool-call round-trip loop once, retrying a single time
// (history preserved) if the vendor fails transiently (spec §4.5:
// "Vendor transient ⇒ retry once within the turn with a fresh run"). A
// non-transient failure, or a retry that fails again, emits an apology as
// the turn's last TurnPartial and ends the turn as TurnFailed.
func (m *Manager) attempt(ctx context.Context, sess *Session, out chan<- TurnEvent) (TurnEventKind, string) {
	for attemptNum := 0; attemptNum < 2; attemptNum++ {
		status, text, transient := m.runRounds(ctx, sess, out)
		if status != TurnFailed {
			return status, text
		}
		if !transient {
			break
		}
		if ctx.Err() != nil {
			return TurnCancelled, ""
		}
		// retry once with a fresh vendor round, history untouched.
	}
	apology := "Sorry, I'm having trouble reaching the assistant right now. Please try again in a moment."
	m.emitFinalText(ctx, out, apology)
	return TurnFailed, apology
}

// runRounds drives the tool-call loop: stream a vendor round, execute any
// requested tools, append their results, and stream again, until a Final
// (or Cancelled/Failed) event terminates it.
func (m *Manager) runRounds(ctx context.Context, sess *Session, out chan<- TurnEvent) (status TurnEventKind, text string, transient bool) {
	msgs := append([]vendorllm.Message(nil), sess.history...)
	batcher := newChunkBatcher(80, time.Second)

	for {
		if ctx.Err() != nil {
			return TurnCancelled, "", false
		}
		req := vendorllm.TurnRequest{Model: m.model, Messages: msgs}
		if m.tools != nil {
			req.Tools = m.tools.Definitions()
		}
		evCh, err := m.vendor.Stream(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return TurnCancelled, "", false
			}
			return TurnFailed, "", isTransientVendorErr(err)
		}

		toolCalls, finalText, outcome := m.drain(ctx, evCh, out, batcher)
		switch outcome {
		case drainCancelled:
			return TurnCancelled, "", false
		case drainFailed:
			return TurnFailed, "", true
		case drainToolCalls:
			msgs = append(msgs, vendorllm.Message{Role: vendorllm.RoleAssistant, ToolCalls: toolCalls})
			for _, tc := range toolCalls {
				if ctx.Err() != nil {
					return TurnCancelled, "", false
				}
				result := m.tools.dispatch(ctx, tc)
				msgs = append(msgs, vendorllm.Message{Role: vendorllm.RoleTool, ToolCallID: tc.ID, Content: result})
			}
			continue
		default: // drainFinal
			sess.history = append(msgs, vendorllm.Message{Role: vendorllm.RoleAssistant, Content: finalText})
			return TurnFinal, finalText, false
		}
	}
}

type drainOutcome int

const (
	drainFinal drainOutcome = iota
	drainToolCalls
	drainCancelled
	drainFailed
)

// drain consumes one vendor round's event channel, forwarding batched
// partial text to out, until the round terminates.
func (m *Manager) drain(ctx context.Context, evCh <-chan vendorllm.Event, out chan<- TurnEvent, batcher *chunkBatcher) ([]vendorllm.ToolCall, string, drainOutcome) {
	idleTimer := time.NewTimer(inactivityTimeout)
	defer idleTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, "", drainCancelled
		case <-idleTimer.C:
			return nil, "", drainFailed
		case ev, ok := <-evCh:
			if !ok {
				if batcher.pending() {
					out <- TurnEvent{Kind: TurnPartial, Text: batcher.flush()}
				}
				return nil, "", drainFinal
			}
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(inactivityTimeout)

			if ctx.Err() != nil {
				return nil, "", drainCancelled
			}
			switch ev.Kind {
			case vendorllm.EventChunk:
				if batch, should := batcher.add(ev.Text); should {
					out <- TurnEvent{Kind: TurnPartial, Text: batch}
				}
				if ctx.Err() != nil {
					return nil, "", drainCancelled
				}
			case vendorllm.EventFinal:
				if batcher.pending() {
					out <- TurnEvent{Kind: TurnPartial, Text: batcher.flush()}
				}
				return nil, ev.Text, drainFinal
			case vendorllm.EventToolCallRequest:
				return ev.ToolCalls, "", drainToolCalls
			case vendorllm.EventCancelled:
				return nil, "", drainCancelled
			case vendorllm.EventFailed:
				return nil, "", drainFailed
			}
		}
	}
}

func (m *Manager) emitFinalText(ctx context.Context, out chan<- TurnEvent, text string) {
	select {
	case out <- TurnEvent{Kind: TurnPartial, Text: text}:
	case <-ctx.Done():
	}
}

// isTransientVendorErr classifies a vendor-call error as transient (worth
// one retry within the turn) using the same substring heuristic
// internal/sheets/retry.go uses for the sheets gateway — small and
// duplicated deliberately, since the two packages classify different
// vendor error shapes and neither depends on the other.
func isTransientVendorErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "500", "502", "503", "504", "timeout", "rate limit", "temporarily unavailable", "connection reset"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
