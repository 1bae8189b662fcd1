package tasks

import (
	"errors"
	"fmt"
	"strings"
)

// ParsePatch reads key=value fields into a Patch. Keys are task, due, remind,
// priority, status, type, and owner; deadline, reminder, and responsible are
// accepted as aliases.
func ParsePatch(fields []string) (Patch, error) {
	var p Patch
	if len(fields) == 0 {
		return p, errors.New("no fields to change")
	}
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return Patch{}, fmt.Errorf("field %q is not key=value", field)
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "task":
			if value == "" {
				return Patch{}, errors.New("task cannot be empty")
			}
			p.Task = &value
		case "due", "deadline":
			p.Deadline = &value
		case "remind", "reminder":
			p.Reminder = &value
		case "priority":
			priority := ParsePriority(value)
			p.Priority = &priority
		case "status":
			status, ok := ParseStatus(value)
			if !ok {
				return Patch{}, fmt.Errorf("unknown status %q", value)
			}
			p.Status = &status
		case "type":
			kind := ParseType(value)
			p.Type = &kind
		case "owner", "responsible":
			p.Responsible = &value
		default:
			return Patch{}, fmt.Errorf("unknown field %q", key)
		}
	}
	return p, nil
}
