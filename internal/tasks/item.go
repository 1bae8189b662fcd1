// Package tasks turns finalized dictation into stored action items.
package tasks

import (
	"errors"
	"strings"
	"time"
)

type Priority string

type Status string

type Type string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

const (
	TypeTask     Type = "task"
	TypeFollowUp Type = "follow_up"
	TypeMeeting  Type = "meeting"
	TypeReminder Type = "reminder"
)

// ReminderNone marks an item without a reminder time.
const ReminderNone = "none"

var (
	ErrEmptyNote   = errors.New("note is empty")
	ErrNotFound    = errors.New("action item not found")
	ErrAmbiguousID = errors.New("ambiguous action item id")
)

// ActionItem is one persisted task extracted from a note.
type ActionItem struct {
	ID          string    `json:"id"`
	Task        string    `json:"task"`
	Deadline    string    `json:"deadline,omitempty"`
	Reminder    string    `json:"reminder"`
	SourceNote  string    `json:"source_note"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
	Type        Type      `json:"type"`
	Responsible string    `json:"responsible,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ParsePriority maps free-form model output onto a priority, defaulting to medium.
func ParsePriority(raw string) Priority {
	switch Priority(normalizeToken(raw)) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh, "urgent":
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

func ParseStatus(raw string) (Status, bool) {
	switch s := Status(normalizeToken(raw)); s {
	case StatusPending, StatusInProgress, StatusDone:
		return s, true
	default:
		return "", false
	}
}

// ParseType maps free-form model output onto an item type, defaulting to task.
func ParseType(raw string) Type {
	switch t := Type(normalizeToken(raw)); t {
	case TypeFollowUp, TypeMeeting, TypeReminder:
		return t
	case "followup":
		return TypeFollowUp
	default:
		return TypeTask
	}
}

// NormalizeReminder returns an RFC 3339 timestamp in UTC or ReminderNone.
func NormalizeReminder(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, ReminderNone) {
		return ReminderNone
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return ReminderNone
	}
	return ts.UTC().Format(time.RFC3339)
}

func normalizeToken(raw string) string {
	token := strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(token)
}
