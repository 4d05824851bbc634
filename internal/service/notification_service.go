package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/config"
	"github.com/spec-kit/identity-service/internal/events"
)

// NotificationService delivers invitations and logs identity events for
// auditing. Delivery is a stub transport: it renders the accept link and
// hands it to the configured channel.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// SendInvitation implements the Notifier boundary. No configured sender
// means delivery cannot happen and the caller must compensate.
func (n *NotificationService) SendInvitation(ctx context.Context, email, token string) error {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return errors.New("no invitation sender configured")
	}

	acceptURL := fmt.Sprintf("%s?email=%s&token=%s", n.cfg.AcceptBaseURL, email, token)
	n.logger.Info("invitation email dispatched",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("to", email),
		zap.String("accept_url", acceptURL))
	n.sendWebhookNotificationStub(ctx, email)
	return nil
}

// RegisterHandlers subscribes to identity events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventUserRegistered, n.handleAudit)
	n.dispatcher.Subscribe(events.EventRoleChanged, n.handleAudit)
	n.dispatcher.Subscribe(events.EventStatusChanged, n.handleAudit)
	n.dispatcher.Subscribe(events.EventUserInvited, n.handleAudit)
	n.dispatcher.Subscribe(events.EventInvitationAccepted, n.handleAudit)
	n.dispatcher.Subscribe(events.EventUserDeleted, n.handleAudit)
	n.dispatcher.Subscribe(events.EventClaimsRepaired, n.handleAudit)
}

func (n *NotificationService) handleAudit(ctx context.Context, event events.Event) error {
	n.logger.Info("identity event",
		zap.String("type", string(event.Type)),
		zap.String("profile_id", event.ProfileID),
		zap.String("email", event.Email),
		zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event.Email)
	return nil
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, email string) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("email", email))
}
