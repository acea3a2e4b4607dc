// ABOUTME: HubSpot CRM object shapes used by the sync engine
// ABOUTME: Flattens v3 object properties and v4 associations into typed structs
package hubspot

import (
	"strings"
	"time"
)

// Object type names as they appear in CRM paths.
const (
	ObjectContacts  = "contacts"
	ObjectCompanies = "companies"
	ObjectTasks     = "tasks"
	ObjectOrders    = "orders"
)

// HubSpot task property values.
const (
	TaskStatusNotStarted = "NOT_STARTED"
	TaskStatusInProgress = "IN_PROGRESS"
	TaskStatusWaiting    = "WAITING"
	TaskStatusCompleted  = "COMPLETED"
	TaskStatusDeferred   = "DEFERRED"

	TaskTypeCall    = "CALL"
	TaskTypeEmail   = "EMAIL"
	TaskTypeTodo    = "TODO"
	TaskTypeMeeting = "MEETING"

	TaskPriorityLow    = "LOW"
	TaskPriorityMedium = "MEDIUM"
	TaskPriorityHigh   = "HIGH"
)

// MaxPageSize is the largest page HubSpot returns from list and search calls.
const MaxPageSize = 100

type Owner struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Name joins the owner's first and last name.
func (o Owner) Name() string {
	return strings.TrimSpace(o.FirstName + " " + o.LastName)
}

type Contact struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Phone     string
	// Company is the flat free-text company property, not an association.
	Company    string
	CompanyIDs []string
	UpdatedAt  string
}

// Name joins the contact's first and last name.
func (c Contact) Name() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type Company struct {
	ID     string
	Name   string
	Domain string
}

// Task is an engagement of type task. Timestamp values are passed through raw
// because HubSpot emits them in seconds or milliseconds depending on endpoint.
type Task struct {
	ID             string
	Subject        string
	Body           string
	Status         string
	Priority       string
	Type           string
	Timestamp      string
	CompletionDate string
	OwnerID        string
	ContactIDs     []string
	CompanyIDs     []string
	UpdatedAt      string
}

type TaskInput struct {
	Subject   string
	Body      string
	Status    string
	Priority  string
	Type      string
	Timestamp time.Time
	OwnerID   string
}

type ContactInput struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Company   string
}

type OrderInput struct {
	Name        string
	AmountCents int64
	Currency    string
	ClosedAt    time.Time
	ExternalRef string
}

// ListOptions bounds a list call to one page, optionally restricted to objects
// modified inside a window.
type ListOptions struct {
	Limit        int
	After        string
	ModifiedFrom *time.Time
	ModifiedTo   *time.Time
}
