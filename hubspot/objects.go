// ABOUTME: HubSpot CRM object endpoints for tasks, contacts, companies, orders and owners
// ABOUTME: Implements search, create, lookup and default association calls
package hubspot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	taskProperties = []string{
		"hs_task_subject", "hs_task_body", "hs_task_status", "hs_task_priority", "hs_task_type",
		"hs_timestamp", "hs_task_completion_date", "hubspot_owner_id", "hs_lastmodifieddate",
	}
	contactProperties = []string{"email", "firstname", "lastname", "phone", "company", "lastmodifieddate"}
	companyProperties = []string{"name", "domain"}
)

type object struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type searchFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type filterGroup struct {
	Filters []searchFilter `json:"filters"`
}

type searchSort struct {
	PropertyName string `json:"propertyName"`
	Direction    string `json:"direction"`
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups,omitempty"`
	Sorts        []searchSort  `json:"sorts,omitempty"`
	Properties   []string      `json:"properties"`
	Limit        int           `json:"limit"`
	After        string        `json:"after,omitempty"`
}

type searchResponse struct {
	Total   int      `json:"total"`
	Results []object `json:"results"`
	Paging  *struct {
		Next struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging,omitempty"`
}

type propertiesBody struct {
	Properties map[string]string `json:"properties"`
}

// ListTasks returns one page of tasks, with their contact and company associations.
func (c *Client) ListTasks(ctx context.Context, opts ListOptions) ([]Task, error) {
	results, err := c.search(ctx, ObjectTasks, "hs_lastmodifieddate", taskProperties, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search tasks: %w", err)
	}

	ids := objectIDs(results)
	contacts, err := c.associationsOrEmpty(ctx, ObjectTasks, ObjectContacts, ids)
	if err != nil {
		return nil, err
	}
	companies, err := c.associationsOrEmpty(ctx, ObjectTasks, ObjectCompanies, ids)
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(results))
	for _, obj := range results {
		p := obj.Properties
		tasks = append(tasks, Task{
			ID:             obj.ID,
			Subject:        p["hs_task_subject"],
			Body:           p["hs_task_body"],
			Status:         p["hs_task_status"],
			Priority:       p["hs_task_priority"],
			Type:           p["hs_task_type"],
			Timestamp:      p["hs_timestamp"],
			CompletionDate: p["hs_task_completion_date"],
			OwnerID:        p["hubspot_owner_id"],
			UpdatedAt:      p["hs_lastmodifieddate"],
			ContactIDs:     contacts[obj.ID],
			CompanyIDs:     companies[obj.ID],
		})
	}

	return tasks, nil
}

// ListContacts returns one page of contacts, with their company associations.
func (c *Client) ListContacts(ctx context.Context, opts ListOptions) ([]Contact, error) {
	results, err := c.search(ctx, ObjectContacts, "lastmodifieddate", contactProperties, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search contacts: %w", err)
	}

	companies, err := c.associationsOrEmpty(ctx, ObjectContacts, ObjectCompanies, objectIDs(results))
	if err != nil {
		return nil, err
	}

	contacts := make([]Contact, 0, len(results))
	for _, obj := range results {
		contact := contactFromObject(obj)
		contact.CompanyIDs = companies[obj.ID]
		contacts = append(contacts, contact)
	}

	return contacts, nil
}

func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	var obj object
	query := url.Values{"properties": {strings.Join(contactProperties, ",")}}
	if err := c.do(ctx, http.MethodGet, "/crm/v3/objects/contacts/"+url.PathEscape(id), query, nil, &obj); err != nil {
		return nil, err
	}
	contact := contactFromObject(obj)
	return &contact, nil
}

// ContactCompanyIDs returns the companies associated with a contact.
func (c *Client) ContactCompanyIDs(ctx context.Context, contactID string) ([]string, error) {
	var resp struct {
		Results []struct {
			ToObjectID int64 `json:"toObjectId"`
		} `json:"results"`
	}
	path := fmt.Sprintf("/crm/v4/objects/contacts/%s/associations/companies", url.PathEscape(contactID))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		ids = append(ids, strconv.FormatInt(r.ToObjectID, 10))
	}
	return ids, nil
}

func (c *Client) GetCompany(ctx context.Context, id string) (*Company, error) {
	var obj object
	query := url.Values{"properties": {strings.Join(companyProperties, ",")}}
	if err := c.do(ctx, http.MethodGet, "/crm/v3/objects/companies/"+url.PathEscape(id), query, nil, &obj); err != nil {
		return nil, err
	}
	return &Company{ID: obj.ID, Name: obj.Properties["name"], Domain: obj.Properties["domain"]}, nil
}

func (c *Client) FetchOwnerByID(ctx context.Context, id string) (*Owner, error) {
	var owner Owner
	if err := c.do(ctx, http.MethodGet, "/crm/v3/owners/"+url.PathEscape(id), nil, nil, &owner); err != nil {
		return nil, err
	}
	return &owner, nil
}

// SearchContactByEmail returns the contact with exactly this email, or
// ErrNotFound. HubSpot stores contact emails lowercased.
func (c *Client) SearchContactByEmail(ctx context.Context, email string) (*Contact, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrNotFound
	}

	var resp searchResponse
	req := searchRequest{
		FilterGroups: []filterGroup{{Filters: []searchFilter{{PropertyName: "email", Operator: "EQ", Value: email}}}},
		Properties:   contactProperties,
		Limit:        1,
	}
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", nil, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, ErrNotFound
	}

	contact := contactFromObject(resp.Results[0])
	return &contact, nil
}

// CreateOrUpdateContact updates the contact that owns in.Email, or creates it.
func (c *Client) CreateOrUpdateContact(ctx context.Context, in ContactInput) (*Contact, error) {
	props := compact(map[string]string{
		"email":     strings.ToLower(strings.TrimSpace(in.Email)),
		"firstname": in.FirstName,
		"lastname":  in.LastName,
		"phone":     in.Phone,
		"company":   in.Company,
	})

	existing, err := c.SearchContactByEmail(ctx, in.Email)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	var obj object
	if existing != nil {
		path := "/crm/v3/objects/contacts/" + url.PathEscape(existing.ID)
		if err := c.do(ctx, http.MethodPatch, path, nil, propertiesBody{Properties: props}, &obj); err != nil {
			return nil, err
		}
	} else {
		if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts", nil, propertiesBody{Properties: props}, &obj); err != nil {
			return nil, err
		}
	}

	contact := contactFromObject(obj)
	return &contact, nil
}

func (c *Client) CreateTask(ctx context.Context, in TaskInput) (string, error) {
	props := compact(map[string]string{
		"hs_timestamp":     epochMillis(in.Timestamp),
		"hs_task_subject":  in.Subject,
		"hs_task_body":     in.Body,
		"hs_task_status":   in.Status,
		"hs_task_priority": in.Priority,
		"hs_task_type":     in.Type,
		"hubspot_owner_id": in.OwnerID,
	})

	var obj object
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/tasks", nil, propertiesBody{Properties: props}, &obj); err != nil {
		return "", err
	}
	return obj.ID, nil
}

func (c *Client) CreateOrder(ctx context.Context, in OrderInput) (string, error) {
	props := compact(map[string]string{
		"hs_order_name":            in.Name,
		"hs_total_price":           formatCents(in.AmountCents),
		"hs_currency_code":         strings.ToUpper(in.Currency),
		"hs_external_order_id":     in.ExternalRef,
		"hs_external_created_date": epochMillis(in.ClosedAt),
	})

	var obj object
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/orders", nil, propertiesBody{Properties: props}, &obj); err != nil {
		return "", err
	}
	return obj.ID, nil
}

// Associate links two objects with HubSpot's default association type.
func (c *Client) Associate(ctx context.Context, fromType, fromID, toType, toID string) error {
	path := fmt.Sprintf("/crm/v4/objects/%s/%s/associations/default/%s/%s",
		url.PathEscape(fromType), url.PathEscape(fromID), url.PathEscape(toType), url.PathEscape(toID))
	return c.do(ctx, http.MethodPut, path, nil, nil, nil)
}

func (c *Client) search(ctx context.Context, objectType, modifiedProperty string, properties []string, opts ListOptions) ([]object, error) {
	limit := opts.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	req := searchRequest{
		Sorts:      []searchSort{{PropertyName: modifiedProperty, Direction: "DESCENDING"}},
		Properties: properties,
		Limit:      limit,
		After:      opts.After,
	}

	var filters []searchFilter
	if opts.ModifiedFrom != nil {
		filters = append(filters, searchFilter{PropertyName: modifiedProperty, Operator: "GTE", Value: epochMillis(*opts.ModifiedFrom)})
	}
	if opts.ModifiedTo != nil {
		filters = append(filters, searchFilter{PropertyName: modifiedProperty, Operator: "LTE", Value: epochMillis(*opts.ModifiedTo)})
	}
	if len(filters) > 0 {
		req.FilterGroups = []filterGroup{{Filters: filters}}
	}

	var resp searchResponse
	path := fmt.Sprintf("/crm/v3/objects/%s/search", objectType)
	if err := c.do(ctx, http.MethodPost, path, nil, req, &resp); err != nil {
		return nil, err
	}

	return resp.Results, nil
}

// batchAssociations maps each from-object id to the ids it is associated with.
// associationsOrEmpty reads associations for a listing. A failed read leaves
// the page without those associations; only a cancelled context is an error.
func (c *Client) associationsOrEmpty(ctx context.Context, fromType, toType string, ids []string) (map[string][]string, error) {
	out, err := c.batchAssociations(ctx, fromType, toType, ids)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	c.logger.Warn("association read failed, listing without them",
		zap.String("from", fromType),
		zap.String("to", toType),
		zap.Int("records", len(ids)),
		zap.Error(err))
	return map[string][]string{}, nil
}

func (c *Client) batchAssociations(ctx context.Context, fromType, toType string, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	type input struct {
		ID string `json:"id"`
	}
	req := struct {
		Inputs []input `json:"inputs"`
	}{}
	for _, id := range ids {
		req.Inputs = append(req.Inputs, input{ID: id})
	}

	var resp struct {
		Results []struct {
			From struct {
				ID string `json:"id"`
			} `json:"from"`
			To []struct {
				ToObjectID int64 `json:"toObjectId"`
			} `json:"to"`
		} `json:"results"`
	}

	path := fmt.Sprintf("/crm/v4/associations/%s/%s/batch/read", fromType, toType)
	if err := c.do(ctx, http.MethodPost, path, nil, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to read %s associations: %w", toType, err)
	}

	for _, r := range resp.Results {
		for _, to := range r.To {
			out[r.From.ID] = append(out[r.From.ID], strconv.FormatInt(to.ToObjectID, 10))
		}
	}

	return out, nil
}

func contactFromObject(obj object) Contact {
	p := obj.Properties
	return Contact{
		ID:        obj.ID,
		Email:     p["email"],
		FirstName: p["firstname"],
		LastName:  p["lastname"],
		Phone:     p["phone"],
		Company:   p["company"],
		UpdatedAt: p["lastmodifieddate"],
	}
}

func objectIDs(objs []object) []string {
	ids := make([]string, 0, len(objs))
	for _, obj := range objs {
		ids = append(ids, obj.ID)
	}
	return ids
}

func compact(props map[string]string) map[string]string {
	for k, v := range props {
		if strings.TrimSpace(v) == "" {
			delete(props, k)
		}
	}
	return props
}

func epochMillis(t time.Time) string {
	return strconv.FormatInt(t.UTC().UnixMilli(), 10)
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
