// ABOUTME: Resolves which HubSpot contact and company an imported record belongs to
// ABOUTME: Walks a priority cascade over contact, property and direct associations, tolerating failed lookups
package sync

import (
	"context"
	"strings"

	"github.com/harperreed/fieldsync/hubspot"
	"go.uber.org/zap"
)

// CompanySignals are the weakly-correlated hints about a record's company.
type CompanySignals struct {
	ContactID              string
	ContactCompanyProperty string
	DirectCompanyIDs       []string
	// ContactCompanyIDs may be preloaded; when empty they are fetched for ContactID.
	ContactCompanyIDs []string
}

type CompanyResolution struct {
	ID     string
	Name   string
	Domain string
}

func (r CompanyResolution) complete() bool {
	return r.ID != "" && r.Name != ""
}

func (r CompanyResolution) empty() bool {
	return r.ID == "" && r.Name == "" && r.Domain == ""
}

type AssociationDirectory interface {
	GetContact(ctx context.Context, id string) (*hubspot.Contact, error)
	GetCompany(ctx context.Context, id string) (*hubspot.Company, error)
	ContactCompanyIDs(ctx context.Context, contactID string) ([]string, error)
}

// AssociationResolver is scoped to one pass; its caches are never shared.
type AssociationResolver struct {
	crm              AssociationDirectory
	logger           *zap.Logger
	companies        map[string]*hubspot.Company
	contactCompanies map[string][]string
}

func NewAssociationResolver(crm AssociationDirectory, logger *zap.Logger) *AssociationResolver {
	return &AssociationResolver{
		crm:              crm,
		logger:           logger,
		companies:        make(map[string]*hubspot.Company),
		contactCompanies: make(map[string][]string),
	}
}

// ResolveContact fetches the first associated contact.
func (r *AssociationResolver) ResolveContact(ctx context.Context, contactIDs []string) (*hubspot.Contact, error) {
	if len(contactIDs) == 0 {
		return nil, nil
	}

	id := contactIDs[0]
	contact, err := r.crm.GetContact(ctx, id)
	if err != nil {
		return nil, &ResolutionFailure{What: "contact", ID: id, Err: err}
	}
	if len(contact.CompanyIDs) > 0 {
		r.contactCompanies[id] = contact.CompanyIDs
	}

	return contact, nil
}

// ResolveCompany picks the record's company: the contact's company
// association, then the contact's company property, then a company attached
// directly to the record. The property fills in a name the earlier steps
// could not provide.
func (r *AssociationResolver) ResolveCompany(ctx context.Context, s CompanySignals) CompanyResolution {
	property := strings.TrimSpace(s.ContactCompanyProperty)

	res := r.firstCompany(ctx, r.contactCompanyIDs(ctx, s))
	if res.complete() {
		return res
	}

	if res.empty() && property != "" {
		return CompanyResolution{Name: property}
	}

	if res.empty() {
		res = r.firstCompany(ctx, s.DirectCompanyIDs)
	}

	if res.Name == "" && property != "" {
		res.Name = property
	}

	return res
}

func (r *AssociationResolver) contactCompanyIDs(ctx context.Context, s CompanySignals) []string {
	if len(s.ContactCompanyIDs) > 0 || s.ContactID == "" {
		return s.ContactCompanyIDs
	}

	if ids, ok := r.contactCompanies[s.ContactID]; ok {
		return ids
	}

	ids, err := r.crm.ContactCompanyIDs(ctx, s.ContactID)
	if err != nil {
		r.logger.Warn("contact company association lookup failed",
			zap.String("contact_id", s.ContactID),
			zap.Error(&ResolutionFailure{What: "contact companies", ID: s.ContactID, Err: err}))
		ids = nil
	}
	r.contactCompanies[s.ContactID] = ids

	return ids
}

// firstCompany resolves the first id. A failed lookup still yields the id.
func (r *AssociationResolver) firstCompany(ctx context.Context, ids []string) CompanyResolution {
	if len(ids) == 0 || ids[0] == "" {
		return CompanyResolution{}
	}
	id := ids[0]

	company, ok := r.companies[id]
	if !ok {
		var err error
		company, err = r.crm.GetCompany(ctx, id)
		if err != nil {
			r.logger.Warn("company lookup failed",
				zap.String("company_id", id),
				zap.Error(&ResolutionFailure{What: "company", ID: id, Err: err}))
			company = nil
		}
		r.companies[id] = company
	}

	if company == nil {
		return CompanyResolution{ID: id}
	}
	return CompanyResolution{ID: id, Name: company.Name, Domain: company.Domain}
}
