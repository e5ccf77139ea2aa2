// Package obslog builds the process-wide structured logger and provides the
// helpers that mask PII fields as they are attached. Every component above the sheets
// gateway logs through a logger derived from NewLogger, never a package
// global, matching the constructed-and-injected convention the rest of the
// coordinator uses for every other client.
package obslog

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Redacted field names, per spec §7's masking rules.
const (
	FieldUserID = "user_id"
	FieldPhone  = "phone"
	FieldName   = "name"
)

// NewLogger builds the process-wide logger, writing to w (os.Stdout in
// production, a buffer in tests) with the redaction hook installed.
func NewLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return zerolog.New(w).
		Level(level).
		Hook(redactHook{}).
		With().
		Timestamp().
		Logger()
}

// redactHook is installed on every logger NewLogger builds but changes
// nothing: zerolog hooks cannot read or rewrite fields already added to an
// event, so Run is a no-op. The redaction guarantee comes
// from MaskUserID/MaskPhone/MaskName being the only sanctioned way to attach
// these fields — see the With* helpers below.
type redactHook struct{}

func (redactHook) Run(_ *zerolog.Event, _ zerolog.Level, _ string) {}

// MaskUserID keeps the first 3 and last 3 characters, starring the middle.
func MaskUserID(id string) string {
	if len(id) <= 6 {
		return strings.Repeat("*", len(id))
	}
	return id[:3] + "***" + id[len(id)-3:]
}

// MaskPhone keeps the first 1 and last 2 digits, starring the middle.
func MaskPhone(phone string) string {
	if len(phone) <= 3 {
		return strings.Repeat("*", len(phone))
	}
	return phone[:1] + strings.Repeat("*", len(phone)-3) + phone[len(phone)-2:]
}

// MaskName keeps the first and last letter of each word, starring the
// middle of each.
func MaskName(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		r := []rune(w)
		switch {
		case len(r) <= 2:
			words[i] = string(r)
		default:
			words[i] = string(r[0]) + strings.Repeat("*", len(r)-2) + string(r[len(r)-1])
		}
	}
	return strings.Join(words, " ")
}

// WithUserID attaches a masked user_id field to the event.
func WithUserID(e *zerolog.Event, userID string) *zerolog.Event {
	return e.Str(FieldUserID, MaskUserID(userID))
}

// WithPhone attaches a masked phone field to the event.
func WithPhone(e *zerolog.Event, phone string) *zerolog.Event {
	return e.Str(FieldPhone, MaskPhone(phone))
}

// WithName attaches a masked name field to the event.
func WithName(e *zerolog.Event, name string) *zerolog.Event {
	return e.Str(FieldName, MaskName(name))
}
