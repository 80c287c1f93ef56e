package telegram

import (
	"context"

	tele "gopkg.in/telebot.v4"
)

// sender is the part of tele.Bot the outbox needs.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Outbox sends messages through the bot. Per-call timeouts are enforced by
// the bot's HTTP client, so a wedged recipient cannot stall a fan-out loop.
// Successful sends feed the per-update counter carried in the context.
type Outbox struct {
	bot sender
}

// NewOutbox wraps the bot as a relay outbox.
func NewOutbox(bot *tele.Bot) *Outbox {
	return &Outbox{bot: bot}
}

// SendText delivers plain text to the recipient chat.
func (o *Outbox) SendText(ctx context.Context, recipient int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := o.bot.Send(&tele.User{ID: recipient}, text); err != nil {
		return err
	}
	countSend(ctx)
	return nil
}

// SendPhoto delivers a photo by file reference with the given caption.
func (o *Outbox) SendPhoto(ctx context.Context, recipient int64, photoRef, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := &tele.Photo{File: tele.File{FileID: photoRef}, Caption: caption}
	if _, err := o.bot.Send(&tele.User{ID: recipient}, photo); err != nil {
		return err
	}
	countSend(ctx)
	return nil
}
