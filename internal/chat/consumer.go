package chat

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
	"go.uber.org/multierr"
)

const consumerName = "chat-notifier"

const (
	previewLimit          = 80
	attachmentPlaceholder = "\U0001F4CE Attachment"
)

type multicaster interface {
	SendMulticast(ctx context.Context, push messaging.MulticastPush) (messaging.MulticastResult, error)
}

// recipient is a collaborator resolved to deliverable addresses. Either field
// may be empty; a recipient with neither is dropped entirely.
type recipient struct {
	email string
	token string
}

// Consumer watches chat-message-created events, fans one in-app notification
// out to every collaborator except the sender in a single atomic batch, and
// follows up with one multicast push to all resolvable tokens. The batch and
// the push are deliberately uncoordinated.
type Consumer struct {
	dir          directory.Repository
	repo         notifications.Repository
	push         multicaster
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	metrics      *metrics.DispatchMetrics
	logg         *logger.Logger
}

// NewConsumer builds the chat message consumer.
func NewConsumer(dir directory.Repository, repo notifications.Repository, push multicaster, subscription *pubsub.Subscriber, manager *idempotency.Manager, m *metrics.DispatchMetrics, logg *logger.Logger) (*Consumer, error) {
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
		return nil, fmt.Errorf("chat subscription required")
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
		c.logg.Warn(logCtx, "idempotency check failed, proceeding")
	} else if already {
		c.logg.Info(logCtx, "event already processed")
		c.metrics.IncEvent(consumerName, metrics.OutcomeSkipped)
		return
	}

	if err := c.handle(logCtx, envelope); err != nil {
		c.logg.Error(logCtx, "chat notification failed", err)
		c.metrics.IncEvent(consumerName, metrics.OutcomeFailed)
		return
	}
	c.metrics.IncEvent(consumerName, metrics.OutcomeHandled)
}

func (c *Consumer) handle(ctx context.Context, envelope *events.ChangeEnvelope) error {
	projectID := envelope.Param("projectId")
	messageID := envelope.Param("messageId")
	if projectID == "" || messageID == "" {
		c.logg.Info(ctx, "chat event missing path parameters")
		return nil
	}
	ctx = c.logg.WithProjectID(ctx, projectID)

	var message models.ChatMessage
	if err := envelope.DecodeAfter(&message); err != nil {
		return fmt.Errorf("decode chat message: %w", err)
	}

	project, err := c.dir.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if project == nil {
		c.logg.Info(ctx, "project no longer exists")
		return nil
	}

	recipients := c.resolveRecipients(ctx, project.Collaborators, message.SenderID)
	if len(recipients) == 0 {
		c.logg.Info(ctx, "no recipients besides the sender")
		return nil
	}

	senderName := message.SenderName
	if senderName == "" {
		senderName = "Someone"
	}
	projectTitle := project.TitleOrDefault()
	title := fmt.Sprintf("New message in %q", projectTitle)
	body := fmt.Sprintf("%s: %s", senderName, previewText(message.Text))

	items := []notifications.Item{}
	tokens := []string{}
	for _, rcpt := range recipients {
		if rcpt.token != "" {
			tokens = append(tokens, rcpt.token)
		}
		if rcpt.email == "" {
			continue
		}
		items = append(items, notifications.Item{
			RecipientEmail: rcpt.email,
			Notification: &models.Notification{
				Title:     title,
				SubTitle:  body,
				Unread:    true,
				Type:      enums.NotificationTypeChatMessage,
				ProjectID: projectID,
				MessageID: messageID,
				SenderID:  message.SenderID,
			},
		})
	}

	if len(items) > 0 {
		if err := c.repo.CreateBatch(ctx, items); err != nil {
			return err
		}
		c.metrics.AddNotifications(consumerName, len(items))
	}

	if len(tokens) == 0 {
		c.logg.Info(ctx, "no push tokens for recipients")
		return nil
	}

	result, err := c.push.SendMulticast(ctx, messaging.MulticastPush{
		Tokens: tokens,
		Title:  title,
		Body:   body,
		Data: map[string]string{
			"type":         string(enums.NotificationTypeChatMessage),
			"projectId":    projectID,
			"messageId":    messageID,
			"senderId":     message.SenderID,
			"projectTitle": projectTitle,
		},
	})
	if err != nil {
		return err
	}
	c.metrics.AddPushes(consumerName, result.SuccessCount)
	c.logg.Info(ctx, "chat notification sent")
	return nil
}

// resolveRecipients looks up every collaborator except the sender. Lookups
// are isolated per item: a failed or missing user only drops that recipient.
func (c *Consumer) resolveRecipients(ctx context.Context, collaborators []models.Collaborator, senderID string) []recipient {
	recipients := []recipient{}
	var lookupErrs error
	for _, collaborator := range collaborators {
		if collaborator.UID == senderID {
			continue
		}
		user, err := c.dir.GetUser(ctx, collaborator.UID)
		if err != nil {
			lookupErrs = multierr.Append(lookupErrs, fmt.Errorf("collaborator %s: %w", collaborator.UID, err))
			continue
		}

		rcpt := recipient{email: collaborator.Email}
		if user != nil {
			if rcpt.email == "" {
				rcpt.email = user.Email
			}
			if user.FCMToken != "" && user.PushEnabled() {
				rcpt.token = user.FCMToken
			}
		}
		if rcpt.email == "" && rcpt.token == "" {
			continue
		}
		recipients = append(recipients, rcpt)
	}
	if lookupErrs != nil {
		c.logg.Warn(c.logg.WithField(ctx, "lookup_errors", lookupErrs.Error()), "some recipient lookups failed")
	}
	return recipients
}

// previewText truncates the message body for the notification preview. An
// empty body means the message carried only an attachment.
func previewText(text string) string {
	if text == "" {
		return attachmentPlaceholder
	}
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit]) + "..."
}
