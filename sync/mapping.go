// ABOUTME: Translates task types, priorities and statuses between HubSpot and local values
// ABOUTME: Unknown or missing inbound values fall back to safe defaults
package sync

import (
	"strings"

	"github.com/harperreed/fieldsync/hubspot"
	"github.com/harperreed/fieldsync/models"
)

// localTaskType maps hs_task_type. Missing or unknown types become calls.
func localTaskType(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case hubspot.TaskTypeEmail:
		return models.TaskTypeEmail
	case hubspot.TaskTypeMeeting:
		return models.TaskTypeVisit
	default:
		return models.TaskTypeCall
	}
}

func remoteTaskType(taskType string) string {
	switch taskType {
	case models.TaskTypeCall:
		return hubspot.TaskTypeCall
	case models.TaskTypeEmail:
		return hubspot.TaskTypeEmail
	default:
		return hubspot.TaskTypeTodo
	}
}

func localPriority(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case hubspot.TaskPriorityHigh:
		return models.PriorityHigh
	case hubspot.TaskPriorityLow:
		return models.PriorityLow
	default:
		return models.PriorityMedium
	}
}

func remotePriority(priority string) string {
	switch priority {
	case models.PriorityUrgent, models.PriorityHigh:
		return hubspot.TaskPriorityHigh
	case models.PriorityLow:
		return hubspot.TaskPriorityLow
	default:
		return hubspot.TaskPriorityMedium
	}
}

func remoteStatus(task models.Task) string {
	if task.CompletedDate != nil || task.Status == models.TaskStatusCompleted {
		return hubspot.TaskStatusCompleted
	}
	return hubspot.TaskStatusNotStarted
}

func externallyCompleted(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), hubspot.TaskStatusCompleted)
}
