// Package messenger defines the narrow external-collaborator interface the
// coordinator uses to talk to the end-user-facing chat transport (spec §1:
// "the messenger transport itself... specified only by the interfaces the
// core uses"), plus the one concrete adapter (telegram.go) that exercises
// it end-to-end.
//
// Grounded on the teacher's internal/channels package shape: a narrow
// per-channel client (whatsappClient) that turns a vendor event stream into
// a single Inbound shape and drains a dedicated outbound queue, generalized
// here from the teacher's multi-channel chat.Hub fan-out into a single
// Messenger interface since the spec names exactly one transport.
package messenger

import "context"

// WebFormSubmission is the structured JSON payload the web-form affordance
// posts back through the messenger (spec §4.10 step 3).
type WebFormSubmission struct {
	PartnerCode  string `json:"partner_code"`
	PartnerPhone string `json:"partner_phone"`
}

// Inbound is one event the router drains from Updates(). Exactly one of
// Text or WebForm is meaningful for a given event; IsStart is set on the
// bot's /start command.
type Inbound struct {
	UserID  string
	ChatID  string
	Text    string
	IsStart bool
	WebForm *WebFormSubmission
}

// Messenger is the narrow capability the router (C10) needs. The single
// concrete adapter in this package (Telegram) is the only thing that talks
// to the vendor SDK; every other package speaks this interface or one of
// the even-narrower Sender interfaces responsemonitor/promotions define.
type Messenger interface {
	// Updates returns the channel of inbound events; closed when the
	// long-poll loop stops.
	Updates() <-chan Inbound

	// SendText delivers a plain text message to userID.
	SendText(ctx context.Context, userID, text string) error

	// SendWebFormPrompt delivers the "authorize via web form" affordance
	// (spec §4.10 step 2: unauthorized /start).
	SendWebFormPrompt(ctx context.Context, userID, formURL string) error

	// SendMainMenu delivers the main menu affordance (spec §4.10 step 2:
	// authorized /start).
	SendMainMenu(ctx context.Context, userID string) error

	// SendEscalationOffer delivers the "contact specialist" affordance
	// after a turn whose reply was classified as escalation-worthy (spec
	// §4.10 step 6).
	SendEscalationOffer(ctx context.Context, userID string) error
}
