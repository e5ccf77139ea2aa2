package messenger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/local/supportbot/internal/heartbeat"
	"github.com/local/supportbot/internal/obslog"
	"github.com/local/supportbot/internal/promotions"
)

// botAPI is the narrow surface this adapter needs from *tgbotapi.BotAPI,
// kept as an interface so tests substitute a fake, the same way
// internal/sheets depends on RawClient rather than the vendor SDK type
// directly.
type botAPI interface {
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetMe() (tgbotapi.User, error)
}

// Telegram is the one concrete Messenger adapter the coordinator ships
// (spec §1 puts the transport out of the core's scope; we keep exactly one
// adapter to exercise the interface, matching the teacher's per-channel
// client shape in internal/channels).
type Telegram struct {
	bot     botAPI
	updates chan Inbound
	logger  zerolog.Logger

	heartbeat *heartbeat.Heartbeat
}

// NewTelegram authenticates with MESSENGER_TOKEN and builds a Telegram
// adapter. The long-poll loop itself only starts once Run is called.
func NewTelegram(token string, logger zerolog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("messenger: authenticating with telegram: %w", err)
	}
	return &Telegram{
		bot:     bot,
		updates: make(chan Inbound, 64),
		logger:  logger.With().Str("component", "messenger.telegram").Logger(),
	}, nil
}

// PingIdentity performs the cheapest possible vendor call (getMe), used by
// the health monitor's liveness check (spec §4.8).
func (t *Telegram) PingIdentity(ctx context.Context) error {
	_, err := t.bot.GetMe()
	return err
}

// Run starts the long-poll loop, translating updates into Inbound events
// until ctx is cancelled. Blocks; intended to be started via the task
// tracker (internal/tasks).
func (t *Telegram) Run(ctx context.Context) {
	defer close(t.updates)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	ch := t.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-ch:
			if !ok {
				return
			}
			if t.heartbeat != nil {
				t.heartbeat.Touch()
			}
			t.handleUpdate(upd)
		}
	}
}

// Updates implements Messenger.
func (t *Telegram) Updates() <-chan Inbound {
	return t.updates
}

func (t *Telegram) handleUpdate(upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	if msg.From == nil {
		return
	}
	in := Inbound{
		UserID: strconv.FormatInt(msg.From.ID, 10),
		ChatID: strconv.FormatInt(msg.Chat.ID, 10),
	}

	switch {
	case msg.IsCommand() && msg.Command() == "start":
		in.IsStart = true
	case looksLikeWebFormPayload(msg.Text):
		var wf WebFormSubmission
		if err := json.Unmarshal([]byte(msg.Text), &wf); err == nil && wf.PartnerCode != "" {
			in.WebForm = &wf
		} else {
			in.Text = msg.Text
		}
	default:
		in.Text = msg.Text
	}

	select {
	case t.updates <- in:
	default:
		obslog.WithUserID(t.logger.Warn(), in.UserID).Msg("inbound queue full, dropping update")
	}
}

func looksLikeWebFormPayload(text string) bool {
	return len(text) > 1 && text[0] == '{'
}

func (t *Telegram) chatID(userID string) (int64, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("messenger: invalid user_id %q: %w", userID, err)
	}
	return id, nil
}

// SendText implements Messenger and responsemonitor.Sender.
func (t *Telegram) SendText(ctx context.Context, userID, text string) error {
	chatID, err := t.chatID(userID)
	if err != nil {
		return err
	}
	_, err = t.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// SendWebFormPrompt implements Messenger.
func (t *Telegram) SendWebFormPrompt(ctx context.Context, userID, formURL string) error {
	chatID, err := t.chatID(userID)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, "Please authorize to continue:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Authorize", formURL),
		),
	)
	_, err = t.bot.Send(msg)
	return err
}

// SendMainMenu implements Messenger.
func (t *Telegram) SendMainMenu(ctx context.Context, userID string) error {
	chatID, err := t.chatID(userID)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, "How can I help you today?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Contact a specialist", "contact_specialist"),
		),
	)
	_, err = t.bot.Send(msg)
	return err
}

// SendEscalationOffer implements Messenger.
func (t *Telegram) SendEscalationOffer(ctx context.Context, userID string) error {
	chatID, err := t.chatID(userID)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, "Would you like to talk to a human specialist?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Contact a specialist", "contact_specialist"),
		),
	)
	_, err = t.bot.Send(msg)
	return err
}

// SendPromotion implements promotions.Sender: one message carrying text,
// optional media bytes, and an optional deep link, per spec §4.7 step 4.
func (t *Telegram) SendPromotion(ctx context.Context, userID string, p promotions.Promotion, media []byte) error {
	chatID, err := t.chatID(userID)
	if err != nil {
		return err
	}
	caption := p.Title
	if p.Description != "" {
		caption += "\n\n" + p.Description
	}
	if p.DeepLink != "" {
		caption += "\n\n" + p.DeepLink
	}

	if len(media) > 0 {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "promotion.jpg", Bytes: media})
		photo.Caption = caption
		_, err = t.bot.Send(photo)
		return err
	}
	_, err = t.bot.Send(tgbotapi.NewMessage(chatID, caption))
	return err
}

// AttachHeartbeat wires the shared liveness timestamp into the long-poll
// loop so every successful fetch updates it (spec §4.8's watchdog reads the
// same timestamp). Called once during startup wiring.
func (t *Telegram) AttachHeartbeat(hb *heartbeat.Heartbeat) {
	t.heartbeat = hb
}

// SendAdminNotification is a best-effort send to a configured admin user_id
// (spec §6's ADMIN_USER_ID, wired by the watchdog on a stall exit). Unlike
// SendText it takes no context and returns no error: an empty userID is
// skipped and any send error is discarded.
func (t *Telegram) SendAdminNotification(userID, text string) {
	if userID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = t.SendText(ctx, userID, text)
}
