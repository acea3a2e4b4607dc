// ABOUTME: Data models for field-sales activity records
// ABOUTME: Defines Task, VisitTarget, Customer, SalesSubmission, SalesTarget, Actor and sync bookkeeping
package models

import (
	"time"

	"github.com/google/uuid"
)

// Provenance records where a record originated.
type Provenance string

const (
	ProvenanceApp      Provenance = "app"
	ProvenanceExternal Provenance = "external"
)

// ApprovalStatus is the approval workflow state shared by tasks, visits and submissions.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Task types.
const (
	TaskTypeCall           = "call"
	TaskTypeVisit          = "visit"
	TaskTypeEmail          = "email"
	TaskTypeQuoteFollowUp  = "quote_follow_up"
	TaskTypeSampleFeedback = "sample_feedback"
	TaskTypeOrderCheck     = "order_check"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Derived task statuses.
const (
	TaskStatusOverdue   = "overdue"
	TaskStatusToday     = "today"
	TaskStatusUpcoming  = "upcoming"
	TaskStatusCompleted = "completed"
)

// Visit statuses.
const (
	VisitStatusPending    = "pending"
	VisitStatusInProgress = "in_progress"
	VisitStatusCompleted  = "completed"
	VisitStatusCancelled  = "cancelled"
)

// Actor roles.
const (
	RoleRep     = "rep"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// Sales target types.
const (
	TargetTypeRevenue = "revenue"
	TargetTypeVisits  = "visits"
	TargetTypeOrders  = "orders"
)

// ExternalRef tracks an entity's identity in the external CRM and the last sync outcome.
type ExternalRef struct {
	ExternalID    string     `json:"external_id,omitempty"`
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
	LastSyncError string     `json:"last_sync_error,omitempty"`
}

// HasExternalID reports whether the record has been created in the external CRM.
func (r ExternalRef) HasExternalID() bool {
	return r.ExternalID != ""
}

// Approval holds approval workflow metadata.
type Approval struct {
	Status          ApprovalStatus `json:"approval_status"`
	ApprovedBy      *uuid.UUID     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	RejectedBy      *uuid.UUID     `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time     `json:"rejected_at,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
}

type Actor struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// IsElevated reports whether the actor's records skip human review.
func (a Actor) IsElevated() bool {
	return a.Role == RoleManager || a.Role == RoleAdmin
}

// IsZero reports whether the actor is unset.
func (a Actor) IsZero() bool {
	return a.ID == uuid.Nil
}

type Customer struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email,omitempty"`
	EmailNormalized string     `json:"-"`
	Phone           string     `json:"phone,omitempty"`
	CompanyName     string     `json:"company_name,omitempty"`
	Provenance      Provenance `json:"provenance,omitempty"`
	ExternalRef
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Task struct {
	ID                    uuid.UUID  `json:"id"`
	Title                 string     `json:"title"`
	Description           string     `json:"description,omitempty"`
	Notes                 string     `json:"notes,omitempty"`
	Type                  string     `json:"type"`
	Priority              string     `json:"priority"`
	Status                string     `json:"status"`
	DueDate               time.Time  `json:"due_date"`
	CompletedDate         *time.Time `json:"completed_date,omitempty"`
	OwnerID               uuid.UUID  `json:"owner_id"`
	CustomerID            *uuid.UUID `json:"customer_id,omitempty"`
	VisitTargetID         *uuid.UUID `json:"visit_target_id,omitempty"`
	ExternalOwnerID       string     `json:"external_owner_id,omitempty"`
	ExternalOwnerName     string     `json:"external_owner_name,omitempty"`
	ExternalContactID     string     `json:"external_contact_id,omitempty"`
	ExternalCompanyID     string     `json:"external_company_id,omitempty"`
	ExternalCompanyName   string     `json:"external_company_name,omitempty"`
	ExternalCompanyDomain string     `json:"external_company_domain,omitempty"`
	Provenance            Provenance `json:"provenance,omitempty"`
	Approval
	ExternalRef
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RefreshStatus recomputes the derived status from the due and completion dates.
func (t *Task) RefreshStatus(now time.Time) {
	t.Status = DeriveTaskStatus(t.DueDate, t.CompletedDate, now)
}

// Complete marks the task completed at the given instant.
func (t *Task) Complete(at time.Time) {
	completed := at.UTC()
	t.CompletedDate = &completed
	t.Status = TaskStatusCompleted
}

// DeriveTaskStatus computes a task's status. Day boundaries are taken in the
// location of now.
func DeriveTaskStatus(due time.Time, completed *time.Time, now time.Time) string {
	if completed != nil {
		return TaskStatusCompleted
	}

	loc := now.Location()
	dueDay := truncateDay(due.In(loc))
	today := truncateDay(now)

	switch {
	case dueDay.Before(today):
		return TaskStatusOverdue
	case dueDay.Equal(today):
		return TaskStatusToday
	default:
		return TaskStatusUpcoming
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

type VisitTarget struct {
	ID         uuid.UUID  `json:"id"`
	Title      string     `json:"title"`
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
	OwnerID    uuid.UUID  `json:"owner_id"`
	Status     string     `json:"status"`
	VisitDate  time.Time  `json:"visit_date"`
	Latitude   float64    `json:"latitude,omitempty"`
	Longitude  float64    `json:"longitude,omitempty"`
	Address    string     `json:"address,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Approval
	ExternalRef
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SalesSubmission struct {
	ID          uuid.UUID  `json:"id"`
	CustomerID  *uuid.UUID `json:"customer_id,omitempty"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	SalesDate   time.Time  `json:"sales_date"`
	Description string     `json:"description,omitempty"`
	Provenance  Provenance `json:"provenance,omitempty"`
	Approval
	ExternalRef
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SalesTarget struct {
	ID              uuid.UUID  `json:"id"`
	OwnerID         *uuid.UUID `json:"owner_id,omitempty"`
	Type            string     `json:"type"`
	TargetValue     int64      `json:"target_value"`
	CurrentProgress int64      `json:"current_progress"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         time.Time  `json:"end_date"`
	Active          bool       `json:"active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Sync status constants.
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

// Sync directions.
const (
	DirectionPull = "pull"
	DirectionPush = "push"
)

type SyncState struct {
	Service      string     `json:"service"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SyncRun is the bookkeeping row for one pull or push pass.
type SyncRun struct {
	ID         string     `json:"id"`
	Direction  string     `json:"direction"`
	Entity     string     `json:"entity"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Fetched    int        `json:"fetched"`
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
}
