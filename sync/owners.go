// ABOUTME: Maps HubSpot owners to local actors
// ABOUTME: Matches by exact email, then exact name, and always falls back to the acting user
package sync

import (
	"context"
	"errors"

	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/hubspot"
	"github.com/harperreed/fieldsync/models"
	"go.uber.org/zap"
)

// ExternalOwner identifies a HubSpot owner by whatever the record carried.
type ExternalOwner struct {
	ID    string
	Email string
	Name  string
}

type ActorFinder interface {
	FindByEmail(ctx context.Context, email string) (*models.Actor, error)
	FindByName(ctx context.Context, name string) (*models.Actor, error)
}

type OwnerDirectory interface {
	FetchOwnerByID(ctx context.Context, id string) (*hubspot.Owner, error)
}

// OwnerResolver is scoped to one pass; its owner cache is never shared.
type OwnerResolver struct {
	actors ActorFinder
	owners OwnerDirectory
	logger *zap.Logger
	cache  map[string]*hubspot.Owner
}

func NewOwnerResolver(actors ActorFinder, owners OwnerDirectory, logger *zap.Logger) *OwnerResolver {
	return &OwnerResolver{
		actors: actors,
		owners: owners,
		logger: logger,
		cache:  make(map[string]*hubspot.Owner),
	}
}

// Lookup fills in the owner's email and name from HubSpot when only the id is known.
func (r *OwnerResolver) Lookup(ctx context.Context, owner ExternalOwner) ExternalOwner {
	if owner.ID == "" || (owner.Email != "" && owner.Name != "") || r.owners == nil {
		return owner
	}

	fetched, ok := r.cache[owner.ID]
	if !ok {
		var err error
		fetched, err = r.owners.FetchOwnerByID(ctx, owner.ID)
		if err != nil {
			r.logger.Warn("owner lookup failed",
				zap.String("owner_id", owner.ID),
				zap.Error(&ResolutionFailure{What: "owner", ID: owner.ID, Err: err}))
			fetched = nil
		}
		// failures are cached too so a pass asks at most once per owner
		r.cache[owner.ID] = fetched
	}

	if fetched != nil {
		if owner.Email == "" {
			owner.Email = fetched.Email
		}
		if owner.Name == "" {
			owner.Name = fetched.Name()
		}
	}

	return owner
}

// Resolve returns the local actor for owner, or current when nothing matches.
func (r *OwnerResolver) Resolve(ctx context.Context, owner ExternalOwner, current models.Actor) models.Actor {
	if actor, ok := r.Match(ctx, owner); ok {
		return actor
	}
	return current
}

// Match returns the local actor for owner and whether one was found.
func (r *OwnerResolver) Match(ctx context.Context, owner ExternalOwner) (models.Actor, bool) {
	owner = r.Lookup(ctx, owner)

	if owner.Email != "" {
		if actor, ok := r.match(ctx, "email", owner.Email, r.actors.FindByEmail); ok {
			return actor, true
		}
	}
	if owner.Name != "" {
		if actor, ok := r.match(ctx, "name", owner.Name, r.actors.FindByName); ok {
			return actor, true
		}
	}

	return models.Actor{}, false
}

func (r *OwnerResolver) match(ctx context.Context, field, value string,
	find func(context.Context, string) (*models.Actor, error)) (models.Actor, bool) {
	actor, err := find(ctx, value)
	if err == nil && actor != nil && !actor.IsZero() {
		return *actor, true
	}
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		r.logger.Warn("actor match failed", zap.String("field", field), zap.Error(err))
	}
	return models.Actor{}, false
}
