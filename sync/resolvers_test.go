// ABOUTME: Tests for owner and association resolution
// ABOUTME: Covers fallbacks, per-pass caching and the company cascade
package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/hubspot"
	"github.com/harperreed/fieldsync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubActors struct {
	byEmail map[string]models.Actor
	byName  map[string]models.Actor
	err     error
}

func (s stubActors) FindByEmail(_ context.Context, email string) (*models.Actor, error) {
	if s.err != nil {
		return nil, s.err
	}
	if a, ok := s.byEmail[email]; ok {
		return &a, nil
	}
	return nil, db.ErrNotFound
}

func (s stubActors) FindByName(_ context.Context, name string) (*models.Actor, error) {
	if a, ok := s.byName[name]; ok {
		return &a, nil
	}
	return nil, db.ErrNotFound
}

func TestOwnerResolverFallsBackToCurrent(t *testing.T) {
	current := models.Actor{ID: uuid.New(), Name: "Me"}
	dana := models.Actor{ID: uuid.New(), Name: "Dana"}
	actors := stubActors{byEmail: map[string]models.Actor{"dana@example.com": dana}, byName: map[string]models.Actor{}}
	resolver := NewOwnerResolver(actors, nil, zap.NewNop())
	ctx := context.Background()

	assert.Equal(t, dana.ID, resolver.Resolve(ctx, ExternalOwner{Email: "dana@example.com"}, current).ID)
	assert.Equal(t, current.ID, resolver.Resolve(ctx, ExternalOwner{Email: "ghost@example.com", Name: "Ghost"}, current).ID)
	assert.Equal(t, current.ID, resolver.Resolve(ctx, ExternalOwner{}, current).ID)
}

func TestOwnerResolverToleratesLookupErrors(t *testing.T) {
	current := models.Actor{ID: uuid.New()}
	crm := newFakeCRM()
	crm.ownerErr = errors.New("rate limited")
	resolver := NewOwnerResolver(stubActors{err: errors.New("db locked")}, crm, zap.NewNop())
	ctx := context.Background()

	got := resolver.Resolve(ctx, ExternalOwner{ID: "o-1", Email: "x@example.com"}, current)
	assert.Equal(t, current.ID, got.ID)

	resolver.Lookup(ctx, ExternalOwner{ID: "o-1"})
	assert.Equal(t, 1, crm.ownerCalls["o-1"])
}

func TestResolveContactWithoutIDs(t *testing.T) {
	resolver := NewAssociationResolver(newFakeCRM(), zap.NewNop())

	contact, err := resolver.ResolveContact(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, contact)

	_, err = resolver.ResolveContact(context.Background(), []string{"missing"})
	var failure *ResolutionFailure
	require.ErrorAs(t, err, &failure)
	assert.ErrorIs(t, err, hubspot.ErrNotFound)
}

func TestResolveCompanyCascade(t *testing.T) {
	crm := newFakeCRM()
	crm.companies["co-1"] = &hubspot.Company{ID: "co-1", Name: "Acme", Domain: "acme.example"}
	crm.companies["co-2"] = &hubspot.Company{ID: "co-2", Name: "Direct"}
	crm.contactCompanies["c-1"] = []string{"co-1"}
	ctx := context.Background()

	tests := []struct {
		name    string
		signals CompanySignals
		want    CompanyResolution
	}{
		{"contact association wins", CompanySignals{ContactID: "c-1", ContactCompanyProperty: "Prop", DirectCompanyIDs: []string{"co-2"}}, CompanyResolution{ID: "co-1", Name: "Acme", Domain: "acme.example"}},
		{"property before direct", CompanySignals{ContactID: "c-2", ContactCompanyProperty: "Prop", DirectCompanyIDs: []string{"co-2"}}, CompanyResolution{Name: "Prop"}},
		{"direct association", CompanySignals{DirectCompanyIDs: []string{"co-2"}}, CompanyResolution{ID: "co-2", Name: "Direct"}},
		{"failed lookup keeps id and property name", CompanySignals{ContactCompanyIDs: []string{"co-missing"}, ContactCompanyProperty: "Prop"}, CompanyResolution{ID: "co-missing", Name: "Prop"}},
		{"nothing", CompanySignals{}, CompanyResolution{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := NewAssociationResolver(crm, zap.NewNop())
			assert.Equal(t, tt.want, resolver.ResolveCompany(ctx, tt.signals))
		})
	}
}

func TestResolveCompanyCachesLookups(t *testing.T) {
	crm := newFakeCRM()
	crm.companyErr = errors.New("boom")
	resolver := NewAssociationResolver(crm, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got := resolver.ResolveCompany(ctx, CompanySignals{DirectCompanyIDs: []string{"co-9"}})
		assert.Equal(t, CompanyResolution{ID: "co-9"}, got)
	}
	assert.Equal(t, 1, crm.companyCalls["co-9"])
}
