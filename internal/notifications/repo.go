package notifications

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/lmarchetti/taskhive-notifier/pkg/docstore"
	"github.com/lmarchetti/taskhive-notifier/pkg/docstore/models"
	pkgerrors "github.com/lmarchetti/taskhive-notifier/pkg/errors"
)

// Item pairs a notification with the recipient feed it belongs to.
type Item struct {
	RecipientEmail string
	Notification   *models.Notification
}

// Repository persists in-app notification documents. Records are append-only;
// nothing in this service reads them back or marks them read.
type Repository interface {
	Create(ctx context.Context, recipientEmail string, notification *models.Notification) error
	CreateBatch(ctx context.Context, items []Item) error
}

type repositoryImpl struct {
	db *docstore.Client
}

// NewRepository returns a notifications repository bound to the document store.
func NewRepository(db *docstore.Client) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) itemRef(recipientEmail string) *firestore.DocumentRef {
	return r.db.Collection(docstore.CollectionNotifs).
		Doc(recipientEmail).
		Collection(docstore.SubCollectionNotifItem).
		Doc(uuid.NewString())
}

func (r *repositoryImpl) Create(ctx context.Context, recipientEmail string, notification *models.Notification) error {
	if recipientEmail == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient email required")
	}
	if _, err := r.itemRef(recipientEmail).Create(ctx, notification); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}
	return nil
}

// CreateBatch writes every item inside one transaction: all documents commit
// or none do.
func (r *repositoryImpl) CreateBatch(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	for _, item := range items {
		if item.RecipientEmail == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "recipient email required")
		}
	}
	err := r.db.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, item := range items {
			if err := tx.Create(r.itemRef(item.RecipientEmail), item.Notification); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification batch")
	}
	return nil
}
