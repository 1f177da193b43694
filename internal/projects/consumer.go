package projects

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/lmarchetti/taskhive-notifier/pkg/docstore/models"
	"github.com/lmarchetti/taskhive-notifier/pkg/enums"
	"github.com/lmarchetti/taskhive-notifier/pkg/events"
	"github.com/lmarchetti/taskhive-notifier/pkg/events/idempotency"
	"github.com/lmarchetti/taskhive-notifier/pkg/logger"
	"github.com/lmarchetti/taskhive-notifier/pkg/messaging"
	"github.com/lmarchetti/taskhive-notifier/pkg/metrics"
)

const consumerName = "project-update-notifier"

// summaryFieldLimit is the point where the summary switches from naming the
// changed fields to counting them.
const summaryFieldLimit = 3

type tokenResolver interface {
	Resolve(ctx context.Context, collaborators []models.Collaborator) []string
}

type multicaster interface {
	SendMulticast(ctx context.Context, push messaging.MulticastPush) (messaging.MulticastResult, error)
}

// Consumer owns project-update semantics. Every update is classified into
// exactly one of {invite-noise, file-added, fields-changed, no-op}; a single
// real change therefore produces a single notification.
type Consumer struct {
	tokens       tokenResolver
	push         multicaster
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	metrics      *metrics.DispatchMetrics
	logg         *logger.Logger
}

// NewConsumer builds the project update consumer.
func NewConsumer(tokens tokenResolver, push multicaster, subscription *pubsub.Subscriber, manager *idempotency.Manager, m *metrics.DispatchMetrics, logg *logger.Logger) (*Consumer, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token resolver required")
	}
	if push == nil {
		return nil, fmt.Errorf("push sender required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("project subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		tokens:       tokens,
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

	if eventType != events.EventDocumentUpdated {
		c.logg.Info(logCtx, "skipping non-update event")
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
		c.logg.Error(logCtx, "project update notification failed", err)
		c.metrics.IncEvent(consumerName, metrics.OutcomeFailed)
		return
	}
	c.metrics.IncEvent(consumerName, metrics.OutcomeHandled)
}

func (c *Consumer) handle(ctx context.Context, envelope *events.ChangeEnvelope) error {
	if !envelope.HasBefore() || !envelope.HasAfter() {
		c.logg.Info(ctx, "update event missing a snapshot")
		return nil
	}
	projectID := envelope.Param("projectId")
	if projectID == "" {
		c.logg.Info(ctx, "update event missing project id")
		return nil
	}
	ctx = c.logg.WithProjectID(ctx, projectID)

	before, err := envelope.BeforeMap()
	if err != nil {
		return fmt.Errorf("decode before snapshot: %w", err)
	}
	after, err := envelope.AfterMap()
	if err != nil {
		return fmt.Errorf("decode after snapshot: %w", err)
	}

	var project models.Project
	if err := envelope.DecodeAfter(&project); err != nil {
		return fmt.Errorf("decode project: %w", err)
	}

	result := classifyUpdate(before, after)
	switch result.kind {
	case updateInviteNoise:
		// Covered by the invite consumer; notifying here would double up.
		c.logg.Info(ctx, "skipping invite-driven project update")
		return nil
	case updateFileAdded:
		return c.notifyFileAdded(ctx, projectID, project, result.newFile)
	case updateFieldsChanged:
		return c.notifyFieldsChanged(ctx, projectID, project, result.changed)
	default:
		c.logg.Info(ctx, "no notifiable change")
		return nil
	}
}

func (c *Consumer) notifyFileAdded(ctx context.Context, projectID string, project models.Project, file models.ProjectFile) error {
	tokens := c.tokens.Resolve(ctx, project.Collaborators)
	if len(tokens) == 0 {
		c.logg.Info(ctx, "no push tokens for collaborators")
		return nil
	}

	result, err := c.push.SendMulticast(ctx, messaging.MulticastPush{
		Tokens: tokens,
		Title:  "New PDF Added",
		Body:   fmt.Sprintf("%s was added to %q", file.FileName, project.TitleOrDefault()),
		Data: map[string]string{
			"type":      string(enums.NotificationTypePDFAdded),
			"projectId": projectID,
			"fileName":  file.FileName,
		},
	})
	if err != nil {
		return err
	}
	c.metrics.AddPushes(consumerName, result.SuccessCount)
	c.logg.Info(c.logg.WithField(ctx, "file_name", file.FileName), "file added notification sent")
	return nil
}

func (c *Consumer) notifyFieldsChanged(ctx context.Context, projectID string, project models.Project, changed []string) error {
	tokens := c.tokens.Resolve(ctx, project.Collaborators)
	if len(tokens) == 0 {
		c.logg.Info(ctx, "no push tokens for collaborators")
		return nil
	}

	changedJSON, err := json.Marshal(changed)
	if err != nil {
		return fmt.Errorf("encode changed fields: %w", err)
	}

	result, err := c.push.SendMulticast(ctx, messaging.MulticastPush{
		Tokens: tokens,
		Title:  "Project Updated",
		Body:   fmt.Sprintf("Changes made in %q (%s)", project.TitleOrDefault(), changeSummary(changed)),
		Data: map[string]string{
			"type":          string(enums.NotificationTypeProjectUpdated),
			"projectId":     projectID,
			"changedFields": string(changedJSON),
		},
	})
	if err != nil {
		return err
	}
	c.metrics.AddPushes(consumerName, result.SuccessCount)
	c.logg.Info(c.logg.WithField(ctx, "changed_fields", changed), "project update notification sent")
	return nil
}

func changeSummary(changed []string) string {
	if len(changed) > summaryFieldLimit {
		return fmt.Sprintf("%d fields updated", len(changed))
	}
	return strings.Join(changed, ", ")
}
