// Package telegram binds the relay service to the Telegram transport: it
// translates telebot updates into normalized inbound messages and implements
// the outbound sender on top of the bot.
package telegram

import (
	"context"
	"strings"
	"time"

	coretelegram "github.com/m3rciful/relaybot/core/telegram"
	tghelpers "github.com/m3rciful/relaybot/core/telegram/helpers"
	"github.com/m3rciful/relaybot/internal/relay"

	"github.com/m3rciful/relaybot/core/logger"
	tele "gopkg.in/telebot.v4"
	"log/slog"
)

// Handler adapts telebot updates for the relay service.
type Handler struct {
	service *relay.Service
}

// NewHandler returns a Handler delegating to the given service.
func NewHandler(service *relay.Service) *Handler {
	return &Handler{service: service}
}

// Routes binds the text and photo endpoints.
func (h *Handler) Routes() []coretelegram.Route {
	return []coretelegram.Route{
		{Endpoint: tele.OnText, Handler: h.onText},
		{Endpoint: tele.OnPhoto, Handler: h.onPhoto},
	}
}

func (h *Handler) onText(c tele.Context) error {
	start := time.Now()
	in := inboundFrom(c)
	in.Text = c.Text()
	return h.handleWithSummary(c, "relay_text", start, func(ctx context.Context) error {
		return h.service.HandleText(ctx, in)
	})
}

func (h *Handler) onPhoto(c tele.Context) error {
	start := time.Now()
	msg := c.Message()
	if msg == nil || msg.Photo == nil {
		logHandlerSummary(c, "relay_photo", start, "skip", 0, nil)
		return nil
	}
	in := inboundFrom(c)
	in.PhotoRef = msg.Photo.FileID
	in.Caption = msg.Caption
	return h.handleWithSummary(c, "relay_photo", start, func(ctx context.Context) error {
		return h.service.HandlePhoto(ctx, in)
	})
}

func (h *Handler) handleWithSummary(c tele.Context, handlerName string, start time.Time, fn func(context.Context) error) error {
	ctx, sends := withSendCounter(tghelpers.WithHandler(c, handlerName))
	err := fn(ctx)
	logHandlerSummary(c, handlerName, start, "", sends.total(), err)
	return err
}

func logHandlerSummary(c tele.Context, handlerName string, start time.Time, statusOverride string, msgs int, err error) {
	ctx := tghelpers.WithHandler(c, handlerName)

	status := statusOverride
	if status == "" {
		if err != nil {
			status = "fail"
		} else {
			status = "ok"
		}
	}

	duration := logger.RoundMS(time.Since(start)).Milliseconds()
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", handlerName),
		slog.Int("messages", msgs),
		slog.Int64("duration_ms", duration),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("cause", handlerName),
		)
	}
	logger.LogEvent(ctx, logger.Component("tg"), slog.LevelInfo, "handler.handled", attrs...)
}

func inboundFrom(c tele.Context) relay.Inbound {
	in := relay.Inbound{}
	if sender := c.Sender(); sender != nil {
		in.SenderID = sender.ID
		in.SenderName = displayName(sender)
	}
	return in
}

func displayName(u *tele.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "unknown"
}
