// Package notes extracts action-item drafts from free-form notes with an LLM.
package notes

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrNoContent = errors.New("model returned no content")

// Draft is one action item as proposed by a model, before normalization.
type Draft struct {
	Task        string `json:"task"`
	Deadline    string `json:"deadline"`
	Reminder    string `json:"reminder"`
	Priority    string `json:"priority"`
	Type        string `json:"type"`
	Responsible string `json:"responsible"`
}

// Instructions is the system prompt shared by every parser.
const Instructions = `You extract action items from a dictated note.
Reply with JSON only: an array of objects with the keys task, deadline, reminder,
priority, type and responsible.
- task: short imperative description
- deadline: free text as spoken, or empty
- reminder: RFC 3339 timestamp if the note asks for a reminder, otherwise "none"
- priority: low, medium or high
- type: task, follow_up, meeting or reminder
- responsible: who should do it, or empty
Return [] when the note contains no action items.`

// DecodeDrafts parses a model reply. It accepts a bare array, an object with
// an "items" array, or either form wrapped in a markdown code fence.
func DecodeDrafts(raw string) ([]Draft, error) {
	text := stripFence(raw)
	if text == "" {
		return nil, ErrNoContent
	}

	var drafts []Draft
	if strings.HasPrefix(text, "{") {
		var wrapped struct {
			Items []Draft `json:"items"`
		}
		if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
			return nil, fmt.Errorf("decode drafts: %w", err)
		}
		drafts = wrapped.Items
	} else if err := json.Unmarshal([]byte(text), &drafts); err != nil {
		return nil, fmt.Errorf("decode drafts: %w", err)
	}

	out := drafts[:0]
	for _, d := range drafts {
		d.Task = strings.TrimSpace(d.Task)
		if d.Task == "" {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func stripFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if newline := strings.IndexByte(text, '\n'); newline >= 0 {
		text = text[newline+1:]
	} else {
		text = ""
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
