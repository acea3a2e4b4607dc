// ABOUTME: Pull pass for HubSpot contacts
// ABOUTME: Upserts customers by external contact id, else links them by normalized email without duplicates
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/hubspot"
	"github.com/harperreed/fieldsync/models"
	"go.uber.org/zap"
)

// PullContacts imports one page of HubSpot contacts into customers.
func (e *Engine) PullContacts(ctx context.Context, filter PullFilter, actor models.Actor) (PullResult, error) {
	var result PullResult
	if err := requireActor(actor); err != nil {
		return result, err
	}
	filter, err := filter.normalize()
	if err != nil {
		return result, err
	}

	p := e.beginPass(ctx, models.DirectionPull, EntityContacts)
	defer func() {
		p.finish(ctx, models.SyncRun{Fetched: result.Fetched, Created: result.Created, Updated: result.Updated, Skipped: result.Skipped}, err)
		e.recordPull(EntityContacts, result)
	}()

	contacts, err := e.crm.ListContacts(ctx, hubspot.ListOptions{Limit: filter.Limit, ModifiedFrom: filter.From, ModifiedTo: filter.To})
	if err != nil {
		err = fmt.Errorf("failed to list hubspot contacts: %w", err)
		return result, err
	}
	result.Fetched = len(contacts)

	matcher := NewCustomerMatcher(e.store.Customers)
	syncedAt := e.now().UTC()

	for _, c := range contacts {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			return result, err
		}

		_, outcome, itemErr := upsertContact(ctx, e.store, matcher, c, syncedAt, e.logger)
		if itemErr != nil {
			var violation *ConsistencyViolation
			if errors.As(itemErr, &violation) {
				e.logger.Error("contact upsert collided with another record", zap.String("external_id", c.ID), zap.Error(itemErr))
			} else {
				e.logger.Warn("skipping contact", zap.String("external_id", c.ID), zap.Error(itemErr))
			}
		}
		result.add(outcome)
	}

	e.logger.Info("contact pull complete",
		zap.Int("fetched", result.Fetched),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("skipped", result.Skipped))

	return result, nil
}

// upsertContact stores c as a customer: by external id first, then by
// normalized email, else as a new customer.
func upsertContact(ctx context.Context, store *db.Store, matcher *CustomerMatcher, c hubspot.Contact, syncedAt time.Time, logger *zap.Logger) (*models.Customer, itemOutcome, error) {
	id := strings.TrimSpace(c.ID)
	if id == "" {
		return nil, outcomeSkipped, &ValidationError{Field: "id", Reason: "missing"}
	}

	existing, err := store.Customers.FindByExternalID(ctx, id)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, outcomeSkipped, err
	}
	if errors.Is(err, db.ErrNotFound) {
		existing = nil
		match, found, err := matcher.FindMatch(ctx, c.Email)
		if err != nil {
			return nil, outcomeSkipped, err
		}
		if found && match.ExternalID != "" && match.ExternalID != id {
			// another contact already owns this address; keep the first link
			violation := &ConsistencyViolation{
				Entity:     EntityContacts,
				ExternalID: id,
				Err:        fmt.Errorf("email already linked to contact %s", match.ExternalID),
			}
			if match.ID != uuid.Nil {
				flagCustomer(ctx, store, logger, match.ID, violation)
			}
			return match, outcomeSkipped, violation
		}
		if found {
			existing = match
		}
	}

	merged := mergeImportedContact(existing, c, syncedAt)

	if existing == nil {
		storedID, created, err := store.Customers.UpsertByExternalID(ctx, &merged)
		if err != nil {
			return nil, outcomeSkipped, contactWriteError(ctx, store, logger, nil, id, err)
		}
		merged.ID = storedID
		matcher.AddCustomer(&merged)
		if created {
			return &merged, outcomeCreated, nil
		}
		return &merged, outcomeUpdated, nil
	}

	if !customerChanged(*existing, merged) {
		if err := store.Customers.TouchSynced(ctx, existing.ID, syncedAt); err != nil {
			return existing, outcomeUnchanged, fmt.Errorf("failed to stamp sync time: %w", err)
		}
		return existing, outcomeUnchanged, nil
	}

	if err := store.Customers.Update(ctx, &merged); err != nil {
		return nil, outcomeSkipped, contactWriteError(ctx, store, logger, existing, id, err)
	}
	matcher.AddCustomer(&merged)

	return &merged, outcomeUpdated, nil
}

func contactWriteError(ctx context.Context, store *db.Store, logger *zap.Logger, existing *models.Customer, externalID string, err error) error {
	if !errors.Is(err, db.ErrConflict) {
		return err
	}

	violation := &ConsistencyViolation{Entity: EntityContacts, ExternalID: externalID, Err: err}
	if existing != nil {
		flagCustomer(ctx, store, logger, existing.ID, violation)
	}
	return violation
}

func flagCustomer(ctx context.Context, store *db.Store, logger *zap.Logger, id uuid.UUID, violation *ConsistencyViolation) {
	if err := store.SetSyncError(ctx, db.EntityCustomer, id, violation.Error()); err != nil {
		logger.Warn("failed to flag customer",
			zap.String("customer_id", id.String()),
			zap.String("external_id", violation.ExternalID),
			zap.Error(err))
	}
}

// mergeImportedContact overwrites the contact fields HubSpot is authoritative
// for. Provenance app is sticky.
func mergeImportedContact(existing *models.Customer, c hubspot.Contact, syncedAt time.Time) models.Customer {
	var customer models.Customer
	if existing != nil {
		customer = *existing
	}

	customer.ExternalID = strings.TrimSpace(c.ID)
	if name := c.Name(); name != "" {
		customer.Name = name
	}
	if email := strings.TrimSpace(c.Email); email != "" {
		customer.Email = email
		customer.EmailNormalized = NormalizeEmail(email)
	}
	if c.Phone != "" {
		customer.Phone = c.Phone
	}
	if c.Company != "" {
		customer.CompanyName = c.Company
	}
	if customer.Name == "" {
		customer.Name = customer.Email
	}
	if customer.Name == "" {
		customer.Name = "HubSpot contact " + customer.ExternalID
	}

	if customer.Provenance != models.ProvenanceApp {
		customer.Provenance = models.ProvenanceExternal
	}

	synced := syncedAt
	customer.LastSyncedAt = &synced

	return customer
}

func customerChanged(before, after models.Customer) bool {
	return before.Name != after.Name ||
		before.Email != after.Email ||
		before.EmailNormalized != after.EmailNormalized ||
		before.Phone != after.Phone ||
		before.CompanyName != after.CompanyName ||
		before.ExternalID != after.ExternalID ||
		before.Provenance != after.Provenance
}
