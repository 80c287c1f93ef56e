// Package relay classifies inbound messages and fans them out to the
// current admin set.
package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	coreconfig "github.com/m3rciful/relaybot/core/config"
	"github.com/m3rciful/relaybot/core/logger"
	"github.com/m3rciful/relaybot/internal/onboarding"
	"github.com/m3rciful/relaybot/internal/roles"
	"log/slog"
)

// Outbox delivers outbound messages. Implementations must bound every call
// with their own timeout; the service treats a timeout like any other
// delivery failure.
type Outbox interface {
	SendText(ctx context.Context, recipient int64, text string) error
	SendPhoto(ctx context.Context, recipient int64, photoRef, caption string) error
}

// Inbound is one normalized incoming message. PhotoRef empty means text.
type Inbound struct {
	SenderID   int64
	SenderName string
	Text       string
	PhotoRef   string
	Caption    string
}

// Service routes each inbound message through exactly one branch: promote,
// demote, or forward.
type Service struct {
	roles   *roles.Registry
	tracker *onboarding.Tracker
	outbox  Outbox
	cfg     coreconfig.RelayConfig
}

// NewService wires the routing state machine.
func NewService(reg *roles.Registry, tracker *onboarding.Tracker, outbox Outbox, cfg coreconfig.RelayConfig) *Service {
	return &Service{roles: reg, tracker: tracker, outbox: outbox, cfg: cfg}
}

// HandleText routes a text message. The admin phrases are matched on the
// trimmed, lowercased text; anything else is forwarded.
func (s *Service) HandleText(ctx context.Context, in Inbound) error {
	normalized := strings.ToLower(strings.TrimSpace(in.Text))
	switch normalized {
	case strings.ToLower(s.cfg.PromotePhrase):
		return s.promote(ctx, in)
	case strings.ToLower(s.cfg.DemotePhrase):
		return s.demote(ctx, in)
	}
	return s.forward(ctx, in)
}

// HandlePhoto routes a photo message. Photos never carry admin phrases; they
// always take the forward branch.
func (s *Service) HandlePhoto(ctx context.Context, in Inbound) error {
	return s.forward(ctx, in)
}

func (s *Service) promote(ctx context.Context, in Inbound) error {
	changed, err := s.roles.Promote(ctx, in.SenderID)
	logger.Debug(ctx, "relay", "branch.promote",
		slog.Int64("user_id", in.SenderID),
		slog.Bool("changed", changed),
	)
	// In-memory promotion holds even when persistence fails, so the
	// confirmation is sent either way; the error surfaces to the caller.
	s.reply(ctx, in.SenderID, s.cfg.Replies.Promoted)
	return err
}

func (s *Service) demote(ctx context.Context, in Inbound) error {
	wasAdmin, err := s.roles.Demote(ctx, in.SenderID)
	text := s.cfg.Replies.NotAdmin
	if wasAdmin {
		text = s.cfg.Replies.Demoted
	}
	logger.Debug(ctx, "relay", "branch.demote",
		slog.Int64("user_id", in.SenderID),
		slog.Bool("was_admin", wasAdmin),
	)
	s.reply(ctx, in.SenderID, text)
	return err
}

func (s *Service) forward(ctx context.Context, in Inbound) error {
	sender := in.SenderID

	if !s.roles.IsAdmin(sender) {
		if !s.tracker.Tracked(sender) {
			if err := s.tracker.EnsureTracked(ctx, sender); err != nil {
				logger.Error(ctx, "relay", "onboard.track_fail",
					slog.Int64("user_id", sender),
					slog.String("err", err.Error()),
				)
			}
		}
		pending, err := s.tracker.ConsumePendingNotice(ctx, sender)
		if err != nil {
			logger.Error(ctx, "relay", "onboard.consume_fail",
				slog.Int64("user_id", sender),
				slog.String("err", err.Error()),
			)
		}
		if pending {
			// Flip is durable at this point. A failed send is not
			// retried; the notice is accepted as lost.
			s.reply(ctx, sender, s.cfg.Replies.OnboardNotice)
		}
	}

	admins := s.roles.Snapshot()
	delivered, failedCount := 0, 0
	var failures *multierror.Error
	for _, adminID := range admins {
		if adminID == sender {
			continue
		}
		if err := s.deliver(ctx, adminID, in); err != nil {
			failures = multierror.Append(failures, fmt.Errorf("admin %d: %w", adminID, err))
			failedCount++
			logger.Warn(ctx, "relay", "forward.delivery_fail",
				slog.Int64("recipient_id", adminID),
				slog.String("err", err.Error()),
			)
			continue
		}
		delivered++
	}

	failed := failures.ErrorOrNil()
	attrs := []slog.Attr{
		slog.Int64("user_id", sender),
		slog.Int("admins", len(admins)),
		slog.Int("delivered", delivered),
		slog.Int("failed", failedCount),
	}
	if failed != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(failed.Error(), 256)))
	}
	logger.Info(ctx, "relay", "forward.done", attrs...)

	// No acknowledgment when nothing was delivered: with zero admins or a
	// total delivery failure the sender hears nothing.
	if delivered > 0 {
		s.reply(ctx, sender, s.cfg.Replies.ForwardAck)
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, recipient int64, in Inbound) error {
	if in.PhotoRef != "" {
		caption := in.Caption
		if strings.TrimSpace(caption) == "" {
			caption = fmt.Sprintf(s.cfg.Replies.ForwardPrefix, in.SenderName)
		}
		return s.outbox.SendPhoto(ctx, recipient, in.PhotoRef, caption)
	}
	text := fmt.Sprintf(s.cfg.Replies.ForwardPrefix, in.SenderName) + ":\n" + in.Text
	return s.outbox.SendText(ctx, recipient, text)
}

// reply sends a confirmation to the sender. Reply failures are logged and
// swallowed; they never affect routing.
func (s *Service) reply(ctx context.Context, recipient int64, text string) {
	if err := s.outbox.SendText(ctx, recipient, text); err != nil {
		logger.Warn(ctx, "relay", "reply.fail",
			slog.Int64("recipient_id", recipient),
			slog.String("err", err.Error()),
		)
	}
}
