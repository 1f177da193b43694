package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/lmarchetti/taskhive-notifier/pkg/config"
	"github.com/lmarchetti/taskhive-notifier/pkg/logger"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Collection and sub-collection names owned by the surrounding application.
const (
	CollectionUsers        = "users"
	CollectionProjects     = "projects"
	CollectionInvites      = "pending_requests"
	SubCollectionRequests  = "requests"
	SubCollectionMessages  = "messages"
	CollectionNotifs       = "notifications"
	SubCollectionNotifItem = "items"
)

var errProjectIDRequired = errors.New("gcp project id is required")

// Client wraps the Firestore connection used by every repository.
type Client struct {
	client *firestore.Client
}

// New bootstraps a Firestore client for the configured GCP project.
func New(ctx context.Context, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	var opts []option.ClientOption
	if gcp.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	} else if gcp.ApplicationCredentials != "" {
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}

	fsClient, err := firestore.NewClient(ctx, gcp.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "firestore client initialized")
	}

	return &Client{client: fsClient}, nil
}

// Collection returns a collection handle by name.
func (c *Client) Collection(name string) *firestore.CollectionRef {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Collection(name)
}

// GetDoc fetches one document. A missing document yields (nil, nil) so callers
// can treat absence as a normal condition rather than an error.
func (c *Client) GetDoc(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref.Path, err)
	}
	if !snap.Exists() {
		return nil, nil
	}
	return snap, nil
}

// FindOneByField runs an equality query with limit 1 and returns the first
// match, or (nil, nil) when the query is empty.
func (c *Client) FindOneByField(ctx context.Context, collection, field string, value any) (*firestore.DocumentSnapshot, error) {
	iter := c.Collection(collection).Where(field, "==", value).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", collection, field, err)
	}
	return snap, nil
}

// RunTransaction executes fn inside a Firestore transaction. Writes issued
// through the transaction commit atomically or not at all.
func (c *Client) RunTransaction(ctx context.Context, fn func(context.Context, *firestore.Transaction) error) error {
	return c.client.RunTransaction(ctx, fn)
}

// Ping verifies Firestore connectivity with a minimal read.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("firestore client not initialized")
	}
	iter := c.client.Collection(CollectionUsers).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("ping firestore: %w", err)
	}
	return nil
}

// Close releases the underlying client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
