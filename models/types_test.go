// ABOUTME: Tests for field-sales data models
// ABOUTME: Validates derived task status and actor role helpers
package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDeriveTaskStatus(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)
	completed := now.Add(-time.Hour)

	tests := []struct {
		name      string
		due       time.Time
		completed *time.Time
		expected  string
	}{
		{"yesterday is overdue", now.AddDate(0, 0, -1), nil, TaskStatusOverdue},
		{"earlier today is today", time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC), nil, TaskStatusToday},
		{"later today is today", time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC), nil, TaskStatusToday},
		{"tomorrow is upcoming", now.AddDate(0, 0, 1), nil, TaskStatusUpcoming},
		{"completed wins over overdue", now.AddDate(0, 0, -5), &completed, TaskStatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveTaskStatus(tt.due, tt.completed, now)
			if got != tt.expected {
				t.Errorf("DeriveTaskStatus() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestTaskComplete(t *testing.T) {
	task := &Task{ID: uuid.New(), DueDate: time.Now().AddDate(0, 0, -3)}
	task.RefreshStatus(time.Now())
	if task.Status != TaskStatusOverdue {
		t.Fatalf("expected overdue, got %s", task.Status)
	}

	task.Complete(time.Now())
	if task.Status != TaskStatusCompleted {
		t.Errorf("expected completed, got %s", task.Status)
	}
	if task.CompletedDate == nil {
		t.Error("expected completed date to be set")
	}

	task.RefreshStatus(time.Now())
	if task.Status != TaskStatusCompleted {
		t.Errorf("refresh must keep completed status, got %s", task.Status)
	}
}

func TestActorIsElevated(t *testing.T) {
	tests := []struct {
		role     string
		expected bool
	}{
		{RoleRep, false},
		{RoleManager, true},
		{RoleAdmin, true},
		{"", false},
	}

	for _, tt := range tests {
		actor := Actor{ID: uuid.New(), Role: tt.role}
		if actor.IsElevated() != tt.expected {
			t.Errorf("Actor{Role: %q}.IsElevated() = %v, want %v", tt.role, actor.IsElevated(), tt.expected)
		}
	}
}

func TestExternalRefHasExternalID(t *testing.T) {
	if (ExternalRef{}).HasExternalID() {
		t.Error("empty ref should not report an external id")
	}
	if !(ExternalRef{ExternalID: "123"}).HasExternalID() {
		t.Error("expected external id to be reported")
	}
}
