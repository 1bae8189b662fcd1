package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rbright/jotter/internal/ipc"
	"github.com/rbright/jotter/internal/tasks"
)

// itemEditor is the orchestrator surface behind done, edit, and delete.
type itemEditor interface {
	MarkDone(ctx context.Context, refs ...string) ([]tasks.ActionItem, error)
	Update(ctx context.Context, ref string, patch tasks.Patch) (tasks.ActionItem, error)
	Delete(ctx context.Context, refs ...string) ([]tasks.ActionItem, error)
}

func savedMessage(n int) string {
	return countMessage(n, "saved")
}

func countMessage(n int, verb string) string {
	if n == 1 {
		return "1 action item " + verb
	}
	return fmt.Sprintf("%d action items %s", n, verb)
}

// editItems runs one of the item-editing IPC commands against svc.
func editItems(ctx context.Context, svc itemEditor, command string, args []string) (string, []tasks.ActionItem, error) {
	switch command {
	case ipc.CommandDone:
		if len(args) == 0 {
			return "", nil, errors.New("done requires at least one item id")
		}
		items, err := svc.MarkDone(ctx, args...)
		if err != nil {
			return "", nil, err
		}
		return countMessage(len(items), "marked done"), items, nil
	case ipc.CommandEdit:
		if len(args) < 2 {
			return "", nil, errors.New("edit requires an item id and at least one key=value field")
		}
		patch, err := tasks.ParsePatch(args[1:])
		if err != nil {
			return "", nil, err
		}
		item, err := svc.Update(ctx, args[0], patch)
		if err != nil {
			return "", nil, err
		}
		return countMessage(1, "updated"), []tasks.ActionItem{item}, nil
	case ipc.CommandDelete:
		if len(args) == 0 {
			return "", nil, errors.New("delete requires at least one item id")
		}
		items, err := svc.Delete(ctx, args...)
		if err != nil {
			return "", nil, err
		}
		return countMessage(len(items), "deleted"), items, nil
	default:
		return "", nil, fmt.Errorf("unsupported item command %q", command)
	}
}

// writeItems prints one line per item: short id, status, priority, task, then
// the optional deadline, reminder, and owner.
func writeItems(w io.Writer, items []tasks.ActionItem) {
	for _, item := range items {
		line := fmt.Sprintf("%-8s  %-11s  %-6s  %s", shortID(item.ID), item.Status, item.Priority, item.Task)
		if item.Deadline != "" {
			line += fmt.Sprintf(" (due %s)", item.Deadline)
		}
		if item.Reminder != "" && item.Reminder != tasks.ReminderNone {
			line += fmt.Sprintf(" [remind %s]", item.Reminder)
		}
		if item.Responsible != "" {
			line += fmt.Sprintf(" @%s", item.Responsible)
		}
		fmt.Fprintln(w, line)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
