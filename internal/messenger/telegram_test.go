package messenger

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/local/supportbot/internal/obslog"
	"github.com/local/supportbot/internal/promotions"
)

// fakeBotAPI is a botAPI test double recording every Chattable sent, in the
// same spirit as internal/sheets's fakeClient.
type fakeBotAPI struct {
	sent []tgbotapi.Chattable
	ch   chan tgbotapi.Update
}

func (f *fakeBotAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.ch
}

func (f *fakeBotAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeBotAPI) GetMe() (tgbotapi.User, error) {
	return tgbotapi.User{ID: 1, IsBot: true, UserName: "supportbot"}, nil
}

func newTestTelegram() (*Telegram, *fakeBotAPI) {
	fb := &fakeBotAPI{ch: make(chan tgbotapi.Update, 8)}
	return &Telegram{bot: fb, updates: make(chan Inbound, 8), logger: obslog.NewLogger(nil, 0)}, fb
}

func TestSendTextUsesUserIDAsChatID(t *testing.T) {
	tg, fb := newTestTelegram()
	if err := tg.SendText(context.Background(), "111222333", "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if len(fb.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(fb.sent))
	}
	msg, ok := fb.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("expected MessageConfig, got %T", fb.sent[0])
	}
	if msg.ChatID != 111222333 {
		t.Fatalf("expected chat id 111222333, got %d", msg.ChatID)
	}
}

func TestSendTextRejectsNonNumericUserID(t *testing.T) {
	tg, _ := newTestTelegram()
	if err := tg.SendText(context.Background(), "not-a-number", "hello"); err == nil {
		t.Fatal("expected error for non-numeric user_id")
	}
}

func TestHandleUpdateClassifiesStartCommand(t *testing.T) {
	tg, _ := newTestTelegram()
	upd := tgbotapi.Update{
		Message: &tgbotapi.Message{
			From:     &tgbotapi.User{ID: 42},
			Chat:     &tgbotapi.Chat{ID: 42},
			Text:     "/start",
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
		},
	}
	tg.handleUpdate(upd)
	select {
	case in := <-tg.updates:
		if !in.IsStart {
			t.Fatalf("expected IsStart, got %+v", in)
		}
		if in.UserID != "42" {
			t.Fatalf("expected user_id 42, got %s", in.UserID)
		}
	default:
		t.Fatal("expected an inbound event")
	}
}

func TestHandleUpdateClassifiesWebFormPayload(t *testing.T) {
	tg, _ := newTestTelegram()
	upd := tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 42},
			Chat: &tgbotapi.Chat{ID: 42},
			Text: `{"partner_code":"P1","partner_phone":"+7 910 123-45-67"}`,
		},
	}
	tg.handleUpdate(upd)
	select {
	case in := <-tg.updates:
		if in.WebForm == nil || in.WebForm.PartnerCode != "P1" {
			t.Fatalf("expected web form payload, got %+v", in)
		}
	default:
		t.Fatal("expected an inbound event")
	}
}

func TestHandleUpdatePlainTextFallsThrough(t *testing.T) {
	tg, _ := newTestTelegram()
	upd := tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 42},
			Chat: &tgbotapi.Chat{ID: 42},
			Text: "hello there",
		},
	}
	tg.handleUpdate(upd)
	select {
	case in := <-tg.updates:
		if in.Text != "hello there" || in.WebForm != nil || in.IsStart {
			t.Fatalf("unexpected classification: %+v", in)
		}
	default:
		t.Fatal("expected an inbound event")
	}
}

func TestSendPromotionWithoutMediaSendsPlainMessage(t *testing.T) {
	tg, fb := newTestTelegram()
	p := promotions.Promotion{Title: "Sale", Description: "50% off", DeepLink: "https://example.com"}
	if err := tg.SendPromotion(context.Background(), "42", p, nil); err != nil {
		t.Fatalf("SendPromotion: %v", err)
	}
	if _, ok := fb.sent[0].(tgbotapi.MessageConfig); !ok {
		t.Fatalf("expected MessageConfig without media, got %T", fb.sent[0])
	}
}

func TestSendPromotionWithMediaSendsPhoto(t *testing.T) {
	tg, fb := newTestTelegram()
	p := promotions.Promotion{Title: "Sale"}
	if err := tg.SendPromotion(context.Background(), "42", p, []byte("fake-jpeg")); err != nil {
		t.Fatalf("SendPromotion: %v", err)
	}
	if _, ok := fb.sent[0].(tgbotapi.PhotoConfig); !ok {
		t.Fatalf("expected PhotoConfig with media, got %T", fb.sent[0])
	}
}
