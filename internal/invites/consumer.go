package invites

import (
	"context"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/lmarchetti/taskhive-notifier/internal/directory"
	"github.com/lmarchetti/taskhive-notifier/internal/notifications"
	"github.com/lmarchetti/taskhive-notifier/pkg/docstore/models"
	"github.com/lmarchetti/taskhive-notifier/pkg/enums"
	"github.com/lmarchetti/taskhive-notifier/pkg/events"
	"github.com/lmarchetti/taskhive-notifier/pkg/events/idempotency"
	"github.com/lmarchetti/taskhive-notifier/pkg/logger"
	"github.com/lmarchetti/taskhive-notifier/pkg/messaging"
	"github.com/lmarchetti/taskhive-notifier/pkg/metrics"
)

const consumerName = "invite-notifier"

// The push payload keeps the historical type string, including its typo: the
// installed clients match on "project_invide" and cannot be updated in step.
const invitePushType = "project_invide"

type pusher interface {
	Send(ctx context.Context, push messaging.Push) error
}

// Consumer watches invite-created events and notifies the invitee in-app and
// over push. Every failure is logged and swallowed: the platform never sees
// an invite event fail.
type Consumer struct {
	dir          directory.Repository
	repo         notifications.Repository
	push         pusher
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	metrics      *metrics.DispatchMetrics
	logg         *logger.Logger
}

// NewConsumer builds the invite notification consumer.
func NewConsumer(dir directory.Repository, repo notifications.Repository, push pusher, subscription *pubsub.Subscriber, manager *idempotency.Manager, m *metrics.DispatchMetrics, logg *logger.Logger) (*Consumer, error) {
	if dir == nil {
		return nil, fmt.Errorf("directory repository required")
	}
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if push == nil {
		return nil, fmt.Errorf("push sender required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("invite subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		dir:          dir,
		repo:         repo,
		push:         push,
		subscription: subscription,
		idempotency:  manager,
		metrics:      m,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		c.process(ctx, msg)
		// Always ack, a failed event is never redelivered.
		msg.Ack()
	})
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) {
	started := time.Now()
	defer func() {
		c.metrics.ObserveDuration(consumerName, time.Since(started))
	}()

	eventType := msg.Attributes[events.AttrEventType]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != events.EventDocumentCreated {
		c.logg.Info(logCtx, "skipping non-create event")
		c.metrics.IncEvent(consumerName, metrics.OutcomeSkipped)
		return
	}

	envelope, err := events.Decode(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		c.metrics.IncEvent(consumerName, metrics.OutcomeFailed)
		return
	}
	logCtx = c.logg.WithEventID(logCtx, envelope.EventID)

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, consumerName, envelope.EventID)
	if err != nil {
		// Best-effort guard only; duplicates stay possible either way.
		c.logg.Warn(logCtx, "idempotency check failed, proceeding")
	} else if already {
		c.logg.Info(logCtx, "event already processed")
		c.metrics.IncEvent(consumerName, metrics.OutcomeSkipped)
		return
	}

	if err := c.handle(logCtx, envelope); err != nil {
		c.logg.Error(logCtx, "invite notification failed", err)
		c.metrics.IncEvent(consumerName, metrics.OutcomeFailed)
		return
	}
	c.metrics.IncEvent(consumerName, metrics.OutcomeHandled)
}

func (c *Consumer) handle(ctx context.Context, envelope *events.ChangeEnvelope) error {
	inviteeEmail := envelope.Param("inviteeEmail")
	inviteID := envelope.Param("inviteId")
	if inviteeEmail == "" || inviteID == "" {
		c.logg.Info(ctx, "invite event missing path parameters")
		return nil
	}

	var invite models.Invite
	if err := envelope.DecodeAfter(&invite); err != nil {
		return fmt.Errorf("decode invite: %w", err)
	}
	if invite.ProjectID == "" {
		c.logg.Info(ctx, "invite has no project id")
		return nil
	}
	ctx = c.logg.WithProjectID(ctx, invite.ProjectID)

	project, err := c.dir.GetProject(ctx, invite.ProjectID)
	if err != nil {
		return err
	}
	if project == nil {
		c.logg.Info(ctx, "project no longer exists")
		return nil
	}

	inviter, err := c.dir.GetUser(ctx, invite.InvitedBy)
	if err != nil {
		return err
	}
	if inviter == nil {
		c.logg.Info(ctx, "inviter no longer exists")
		return nil
	}

	invitee, err := c.dir.FindUserByEmail(ctx, inviteeEmail)
	if err != nil {
		return err
	}
	if invitee == nil {
		c.logg.Info(ctx, "no user registered for invitee email")
		return nil
	}

	inviterName := inviter.Name()
	projectTitle := project.TitleOrDefault()
	role := invite.RoleOrDefault()

	notification := &models.Notification{
		Title:     "New Project Invitation",
		SubTitle:  fmt.Sprintf("%s is inviting you to collaborate in %q as %s. Tap to view.", inviterName, projectTitle, role),
		Unread:    true,
		Type:      enums.NotificationTypeProjectInvite,
		ProjectID: invite.ProjectID,
		InviteID:  inviteID,
	}
	if err := c.repo.Create(ctx, inviteeEmail, notification); err != nil {
		return err
	}
	c.metrics.AddNotifications(consumerName, 1)

	if invitee.FCMToken == "" || !invitee.PushEnabled() {
		c.logg.Info(c.logg.WithRecipient(ctx, inviteeEmail), "no push token for invitee")
		return nil
	}

	err = c.push.Send(ctx, messaging.Push{
		Token: invitee.FCMToken,
		Title: "New Project Invitation",
		Body:  fmt.Sprintf("%s invited you to %q as %s.", inviterName, projectTitle, role),
		Data: map[string]string{
			"type":         invitePushType,
			"projectId":    invite.ProjectID,
			"inviteId":     inviteID,
			"inviterName":  inviterName,
			"projectTitle": projectTitle,
		},
	})
	if err != nil {
		return err
	}
	c.metrics.AddPushes(consumerName, 1)
	c.logg.Info(c.logg.WithRecipient(ctx, inviteeEmail), "invite notification sent")
	return nil
}
