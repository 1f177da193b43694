package directory

import (
	"context"

	"github.com/lmarchetti/taskhive-notifier/pkg/docstore"
	"github.com/lmarchetti/taskhive-notifier/pkg/docstore/models"
	pkgerrors "github.com/lmarchetti/taskhive-notifier/pkg/errors"
)

// Repository reads the user and project documents owned by the application.
// All methods return (nil, nil) when the document is absent: missing data is
// a normal condition for every consumer, not an error.
type Repository interface {
	GetProject(ctx context.Context, projectID string) (*models.Project, error)
	GetUser(ctx context.Context, uid string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type repositoryImpl struct {
	db *docstore.Client
}

// NewRepository returns a directory repository bound to the document store.
func NewRepository(db *docstore.Client) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	snap, err := r.db.GetDoc(ctx, r.db.Collection(docstore.CollectionProjects).Doc(projectID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read project")
	}
	if snap == nil {
		return nil, nil
	}
	var project models.Project
	if err := snap.DataTo(&project); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode project")
	}
	return &project, nil
}

func (r *repositoryImpl) GetUser(ctx context.Context, uid string) (*models.User, error) {
	snap, err := r.db.GetDoc(ctx, r.db.Collection(docstore.CollectionUsers).Doc(uid))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read user")
	}
	if snap == nil {
		return nil, nil
	}
	var user models.User
	if err := snap.DataTo(&user); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode user")
	}
	return &user, nil
}

// FindUserByEmail resolves a user through an equality query with limit 1.
// Email is assumed unique; only the first match is ever used.
func (r *repositoryImpl) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	snap, err := r.db.FindOneByField(ctx, docstore.CollectionUsers, "email", email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query user by email")
	}
	if snap == nil {
		return nil, nil
	}
	var user models.User
	if err := snap.DataTo(&user); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode user")
	}
	return &user, nil
}
