// ABOUTME: Merges an imported HubSpot task into the local task it maps to
// ABOUTME: Lists exactly which fields an import may overwrite and which stay local
package sync

import (
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/models"
)

// importedTask is the canonical local shape of one HubSpot task after
// timestamp, owner and association resolution.
type importedTask struct {
	ExternalID          string
	Title               string
	Description         string
	Type                string
	Priority            string
	DueDate             time.Time
	CompletedDate       *time.Time
	ExternallyCompleted bool
	Owner               models.Actor
	OwnerMatched        bool
	ExternalOwner       ExternalOwner
	CustomerID          *uuid.UUID
	ExternalContactID   string
	Company             CompanyResolution
}

// mergeImportedTask returns the task to store for in. existing is nil when the
// external id has never been seen.
//
// Import-authoritative: title, description, type, priority, due date, owner,
// customer, and the external owner/contact/company fields. An owner that did
// not match a local actor only replaces the stored one when the HubSpot owner
// itself changed.
// Preserved: notes, visit target link, an app provenance, approval (unless the
// task was completed in HubSpot), last sync error, creator.
func mergeImportedTask(existing *models.Task, in importedTask, actor models.Actor, syncedAt time.Time) models.Task {
	var task models.Task
	if existing == nil {
		approvedAt := syncedAt
		task = models.Task{
			ExternalRef: models.ExternalRef{ExternalID: in.ExternalID},
			Approval: models.Approval{
				Status:     models.ApprovalApproved,
				ApprovedBy: &actor.ID,
				ApprovedAt: &approvedAt,
			},
			CreatedBy: actor.ID,
		}
	} else {
		task = *existing
	}

	task.Title = in.Title
	task.Description = in.Description
	task.Type = in.Type
	task.Priority = in.Priority
	task.DueDate = in.DueDate
	sameOwner := existing != nil && existing.OwnerID != uuid.Nil && existing.ExternalOwnerID == in.ExternalOwner.ID
	if in.OwnerMatched || !sameOwner {
		task.OwnerID = in.Owner.ID
	}
	if in.CustomerID != nil {
		task.CustomerID = in.CustomerID
	}
	task.ExternalOwnerID = in.ExternalOwner.ID
	if in.ExternalOwner.Name != "" || !sameOwner {
		task.ExternalOwnerName = in.ExternalOwner.Name
	}
	if in.ExternalContactID != "" {
		task.ExternalContactID = in.ExternalContactID
	}
	if !in.Company.empty() {
		task.ExternalCompanyID = in.Company.ID
		task.ExternalCompanyName = in.Company.Name
		task.ExternalCompanyDomain = in.Company.Domain
	}

	// app is sticky; anything else, including never claimed, becomes external
	if task.Provenance != models.ProvenanceApp {
		task.Provenance = models.ProvenanceExternal
	}

	if in.ExternallyCompleted {
		completed := syncedAt
		if in.CompletedDate != nil {
			completed = *in.CompletedDate
		}
		if task.CompletedDate == nil {
			task.Complete(completed)
		}
		if task.Approval.Status != models.ApprovalApproved {
			approvedAt := syncedAt
			task.Approval = models.Approval{
				Status:     models.ApprovalApproved,
				ApprovedBy: &actor.ID,
				ApprovedAt: &approvedAt,
			}
		}
	}

	// day boundaries follow the store, which derives status in local time
	task.RefreshStatus(syncedAt.Local())
	synced := syncedAt
	task.LastSyncedAt = &synced

	return task
}

// taskChanged reports whether merging changed anything an import controls.
func taskChanged(before, after models.Task) bool {
	return before.Title != after.Title ||
		before.Description != after.Description ||
		before.Type != after.Type ||
		before.Priority != after.Priority ||
		!before.DueDate.Equal(after.DueDate) ||
		!sameTime(before.CompletedDate, after.CompletedDate) ||
		before.Status != after.Status ||
		before.OwnerID != after.OwnerID ||
		!sameUUID(before.CustomerID, after.CustomerID) ||
		before.ExternalOwnerID != after.ExternalOwnerID ||
		before.ExternalOwnerName != after.ExternalOwnerName ||
		before.ExternalContactID != after.ExternalContactID ||
		before.ExternalCompanyID != after.ExternalCompanyID ||
		before.ExternalCompanyName != after.ExternalCompanyName ||
		before.ExternalCompanyDomain != after.ExternalCompanyDomain ||
		before.Provenance != after.Provenance ||
		before.Approval.Status != after.Approval.Status
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func sameUUID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
