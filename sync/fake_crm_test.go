// ABOUTME: In-memory HubSpot stand-in for engine tests
// ABOUTME: Serves canned objects and records every create and associate call
package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/hubspot"
	"github.com/harperreed/fieldsync/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type association struct {
	fromType, fromID, toType, toID string
}

type fakeCRM struct {
	tasks            []hubspot.Task
	contacts         []hubspot.Contact
	contactsByID     map[string]*hubspot.Contact
	companies        map[string]*hubspot.Company
	owners           map[string]*hubspot.Owner
	contactCompanies map[string][]string

	listErr      error
	createErr    error
	associateErr error
	companyErr   error
	ownerErr     error

	ownerCalls     map[string]int
	companyCalls   map[string]int
	createdTasks   []hubspot.TaskInput
	createdOrders  []hubspot.OrderInput
	upsertContacts []hubspot.ContactInput
	emailSearches  []string
	associations   []association
	nextID         int
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		contactsByID:     make(map[string]*hubspot.Contact),
		companies:        make(map[string]*hubspot.Company),
		owners:           make(map[string]*hubspot.Owner),
		contactCompanies: make(map[string][]string),
		ownerCalls:       make(map[string]int),
		companyCalls:     make(map[string]int),
	}
}

func (f *fakeCRM) addContact(c hubspot.Contact) {
	f.contacts = append(f.contacts, c)
	stored := c
	f.contactsByID[c.ID] = &stored
}

func (f *fakeCRM) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeCRM) ListTasks(_ context.Context, opts hubspot.ListOptions) ([]hubspot.Task, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if opts.Limit > 0 && len(f.tasks) > opts.Limit {
		return f.tasks[:opts.Limit], nil
	}
	return f.tasks, nil
}

func (f *fakeCRM) ListContacts(_ context.Context, opts hubspot.ListOptions) ([]hubspot.Contact, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if opts.Limit > 0 && len(f.contacts) > opts.Limit {
		return f.contacts[:opts.Limit], nil
	}
	return f.contacts, nil
}

func (f *fakeCRM) GetContact(_ context.Context, id string) (*hubspot.Contact, error) {
	c, ok := f.contactsByID[id]
	if !ok {
		return nil, hubspot.ErrNotFound
	}
	return c, nil
}

func (f *fakeCRM) ContactCompanyIDs(_ context.Context, contactID string) ([]string, error) {
	return f.contactCompanies[contactID], nil
}

func (f *fakeCRM) GetCompany(_ context.Context, id string) (*hubspot.Company, error) {
	f.companyCalls[id]++
	if f.companyErr != nil {
		return nil, f.companyErr
	}
	c, ok := f.companies[id]
	if !ok {
		return nil, hubspot.ErrNotFound
	}
	return c, nil
}

func (f *fakeCRM) FetchOwnerByID(_ context.Context, id string) (*hubspot.Owner, error) {
	f.ownerCalls[id]++
	if f.ownerErr != nil {
		return nil, f.ownerErr
	}
	o, ok := f.owners[id]
	if !ok {
		return nil, hubspot.ErrNotFound
	}
	return o, nil
}

func (f *fakeCRM) SearchContactByEmail(_ context.Context, email string) (*hubspot.Contact, error) {
	f.emailSearches = append(f.emailSearches, email)
	for _, c := range f.contactsByID {
		if c.Email == email {
			return c, nil
		}
	}
	return nil, hubspot.ErrNotFound
}

func (f *fakeCRM) CreateOrUpdateContact(_ context.Context, in hubspot.ContactInput) (*hubspot.Contact, error) {
	f.upsertContacts = append(f.upsertContacts, in)
	c := hubspot.Contact{ID: f.newID("contact"), Email: in.Email, FirstName: in.FirstName, LastName: in.LastName}
	f.contactsByID[c.ID] = &c
	return &c, nil
}

func (f *fakeCRM) CreateTask(_ context.Context, in hubspot.TaskInput) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.createdTasks = append(f.createdTasks, in)
	return f.newID("task"), nil
}

func (f *fakeCRM) CreateOrder(_ context.Context, in hubspot.OrderInput) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.createdOrders = append(f.createdOrders, in)
	return f.newID("order"), nil
}

func (f *fakeCRM) Associate(_ context.Context, fromType, fromID, toType, toID string) error {
	if f.associateErr != nil {
		return f.associateErr
	}
	f.associations = append(f.associations, association{fromType, fromID, toType, toID})
	return nil
}

var _ CRM = (*fakeCRM)(nil)

func setupEngine(t *testing.T) (*Engine, *db.Store, *fakeCRM) {
	t.Helper()

	database, err := db.OpenMemory()
	require.NoError(t, err)
	store := db.NewStore(database)
	t.Cleanup(func() { _ = store.Close() })

	crm := newFakeCRM()
	return NewEngine(store, crm, zap.NewNop(), nil), store, crm
}

func createActor(t *testing.T, store *db.Store, name, email, role string) models.Actor {
	t.Helper()
	actor := &models.Actor{Name: name, Email: email, Role: role}
	require.NoError(t, store.Actors.Create(context.Background(), actor))
	return *actor
}
