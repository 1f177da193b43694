package directory

import (
	"context"
	"fmt"

	"github.com/lmarchetti/taskhive-notifier/pkg/docstore/models"
	"github.com/lmarchetti/taskhive-notifier/pkg/logger"
	"go.uber.org/multierr"
)

type userGetter interface {
	GetUser(ctx context.Context, uid string) (*models.User, error)
}

// TokenResolver turns a collaborator list into the push tokens that may be
// addressed: a token is included only when it is non-empty and its owner has
// not opted out of notifications.
type TokenResolver struct {
	users userGetter
	logg  *logger.Logger
}

// NewTokenResolver wires the resolver against the directory.
func NewTokenResolver(users userGetter, logg *logger.Logger) (*TokenResolver, error) {
	if users == nil {
		return nil, fmt.Errorf("user directory required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &TokenResolver{users: users, logg: logg}, nil
}

// Resolve looks up each collaborator independently. One failed lookup never
// fails the batch; failures are collected and logged once.
func (t *TokenResolver) Resolve(ctx context.Context, collaborators []models.Collaborator) []string {
	tokens := make([]string, 0, len(collaborators))
	var lookupErrs error
	for _, collaborator := range collaborators {
		user, err := t.users.GetUser(ctx, collaborator.UID)
		if err != nil {
			lookupErrs = multierr.Append(lookupErrs, fmt.Errorf("collaborator %s: %w", collaborator.UID, err))
			continue
		}
		if user == nil || user.FCMToken == "" || !user.PushEnabled() {
			continue
		}
		tokens = append(tokens, user.FCMToken)
	}
	if lookupErrs != nil {
		t.logg.Warn(t.logg.WithField(ctx, "lookup_errors", lookupErrs.Error()), "some collaborator lookups failed")
	}
	return tokens
}
