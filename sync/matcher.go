// ABOUTME: Customer deduplication by normalized email
// ABOUTME: Finds existing customers by email so imports never create a second customer for one address
package sync

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type CustomerFinder interface {
	FindByEmail(ctx context.Context, normalized string) (*models.Customer, error)
}

// CustomerMatcher remembers customers seen during one import session on top
// of the stored ones.
type CustomerMatcher struct {
	finder  CustomerFinder
	byEmail map[string]*models.Customer
}

func NewCustomerMatcher(finder CustomerFinder) *CustomerMatcher {
	return &CustomerMatcher{
		finder:  finder,
		byEmail: make(map[string]*models.Customer),
	}
}

// FindMatch looks for an existing customer by email.
func (m *CustomerMatcher) FindMatch(ctx context.Context, email string) (*models.Customer, bool, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return nil, false, nil
	}

	if customer, ok := m.byEmail[normalized]; ok {
		return customer, true, nil
	}

	customer, err := m.finder.FindByEmail(ctx, normalized)
	if errors.Is(err, db.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	m.byEmail[normalized] = customer
	return customer, true, nil
}

// AddCustomer adds a newly stored customer to prevent duplicates within the
// same import session.
func (m *CustomerMatcher) AddCustomer(customer *models.Customer) {
	if customer.EmailNormalized != "" {
		m.byEmail[customer.EmailNormalized] = customer
	}
}

// NormalizeEmail lowercases and trims email. It returns "" when the address is
// not syntactically valid, so invalid addresses never act as a dedup key.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || validate.Var(email, "email") != nil {
		return ""
	}
	return email
}
