package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/lmarchetti/taskhive-notifier/pkg/config"
	"github.com/lmarchetti/taskhive-notifier/pkg/logger"
	"google.golang.org/api/option"
)

var errNoTokens = errors.New("multicast push requires at least one token")

// Push is a single-target notification.
type Push struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// MulticastPush addresses many tokens with one send call. Each token is
// delivered independently by FCM.
type MulticastPush struct {
	Tokens []string
	Title  string
	Body   string
	Data   map[string]string
}

// MulticastResult summarizes per-token delivery outcomes.
type MulticastResult struct {
	SuccessCount int
	FailureCount int
}

// Client wraps the FCM sender used by every consumer.
type Client struct {
	sender fcmSender
	dryRun bool
}

type fcmSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SendDryRun(ctx context.Context, message *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
	SendEachForMulticastDryRun(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// New bootstraps the Firebase messaging client for the configured project.
func New(ctx context.Context, gcp config.GCPConfig, cfg config.MessagingConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errors.New("gcp project id is required")
	}

	var opts []option.ClientOption
	if gcp.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	} else if gcp.ApplicationCredentials != "" {
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: gcp.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firebase app: %w", err)
	}
	sender, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating messaging client: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "messaging client initialized")
	}

	return &Client{sender: sender, dryRun: cfg.DryRun}, nil
}

// Send delivers one push to a single device token.
func (c *Client) Send(ctx context.Context, push Push) error {
	if strings.TrimSpace(push.Token) == "" {
		return errors.New("push token is required")
	}
	message := &messaging.Message{
		Notification: &messaging.Notification{
			Title: push.Title,
			Body:  push.Body,
		},
		Data:  push.Data,
		Token: push.Token,
	}

	var err error
	if c.dryRun {
		_, err = c.sender.SendDryRun(ctx, message)
	} else {
		_, err = c.sender.Send(ctx, message)
	}
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}

// SendMulticast delivers one push to every token in the batch. Partial
// failures are reported in the result, not as an error.
func (c *Client) SendMulticast(ctx context.Context, push MulticastPush) (MulticastResult, error) {
	if len(push.Tokens) == 0 {
		return MulticastResult{}, errNoTokens
	}
	message := &messaging.MulticastMessage{
		Notification: &messaging.Notification{
			Title: push.Title,
			Body:  push.Body,
		},
		Data:   push.Data,
		Tokens: push.Tokens,
	}

	var (
		response *messaging.BatchResponse
		err      error
	)
	if c.dryRun {
		response, err = c.sender.SendEachForMulticastDryRun(ctx, message)
	} else {
		response, err = c.sender.SendEachForMulticast(ctx, message)
	}
	if err != nil {
		return MulticastResult{}, fmt.Errorf("fcm multicast send: %w", err)
	}
	return MulticastResult{
		SuccessCount: response.SuccessCount,
		FailureCount: response.FailureCount,
	}, nil
}
