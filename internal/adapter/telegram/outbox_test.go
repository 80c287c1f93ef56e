package telegram

import (
	"context"
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"
)

type fakeSender struct {
	err  error
	to   []tele.Recipient
	sent []interface{}
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.to = append(f.to, to)
	f.sent = append(f.sent, what)
	return &tele.Message{}, nil
}

func TestOutboxCountsSuccessfulSends(t *testing.T) {
	ctx, sends := withSendCounter(context.Background())
	bot := &fakeSender{}
	out := &Outbox{bot: bot}

	if err := out.SendText(ctx, 42, "hello"); err != nil {
		t.Fatalf("send text: %v", err)
	}
	if err := out.SendPhoto(ctx, 42, "file-abc", "a caption"); err != nil {
		t.Fatalf("send photo: %v", err)
	}

	if sends.total() != 2 {
		t.Fatalf("counter = %d, want 2", sends.total())
	}
	user, ok := bot.to[0].(*tele.User)
	if !ok || user.ID != 42 {
		t.Fatalf("recipient = %#v, want user 42", bot.to[0])
	}
	photo, ok := bot.sent[1].(*tele.Photo)
	if !ok || photo.FileID != "file-abc" || photo.Caption != "a caption" {
		t.Fatalf("photo payload = %#v", bot.sent[1])
	}
}

func TestOutboxFailedSendNotCounted(t *testing.T) {
	ctx, sends := withSendCounter(context.Background())
	out := &Outbox{bot: &fakeSender{err: errors.New("blocked by user")}}

	if err := out.SendText(ctx, 42, "hello"); err == nil {
		t.Fatalf("expected send error")
	}
	if sends.total() != 0 {
		t.Fatalf("counter = %d after failed send, want 0", sends.total())
	}
}

func TestOutboxWithoutCounter(t *testing.T) {
	bot := &fakeSender{}
	out := &Outbox{bot: bot}
	if err := out.SendText(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("send without counter: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("send not delivered: %v", bot.sent)
	}
}

func TestOutboxCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bot := &fakeSender{}
	out := &Outbox{bot: bot}

	if err := out.SendText(ctx, 42, "hello"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(bot.sent) != 0 {
		t.Fatalf("cancelled context must not send, got %v", bot.sent)
	}
}
