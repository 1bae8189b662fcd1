package tasks

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePatch(t *testing.T) {
	p, err := ParsePatch([]string{"task=Email Dana", "due= friday ", "priority=urgent", "status=in progress", "owner=me", "type=follow-up"})
	require.NoError(t, err)
	require.Equal(t, "Email Dana", *p.Task)
	require.Equal(t, "friday", *p.Deadline)
	require.Equal(t, PriorityHigh, *p.Priority)
	require.Equal(t, StatusInProgress, *p.Status)
	require.Equal(t, "me", *p.Responsible)
	require.Equal(t, TypeFollowUp, *p.Type)
	require.Nil(t, p.Reminder)

	p, err = ParsePatch([]string{"remind=2026-03-02T10:00:00Z", "Deadline="})
	require.NoError(t, err)
	require.Equal(t, "2026-03-02T10:00:00Z", *p.Reminder)
	require.Empty(t, *p.Deadline)
}

func TestParsePatchRejectsBadFields(t *testing.T) {
	tests := map[string][]string{
		"no fields to change":  nil,
		"not key=value":        {"friday"},
		"unknown field":        {"colour=red"},
		"unknown status":       {"status=archived"},
		"task cannot be empty": {"task= "},
	}
	for want, fields := range tests {
		t.Run(want, func(t *testing.T) {
			_, err := ParsePatch(fields)
			require.ErrorContains(t, err, want)
		})
	}
}
