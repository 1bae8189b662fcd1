package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/jotter/internal/notes"
)

// NoteParser extracts action-item drafts from a note.
type NoteParser interface {
	Parse(ctx context.Context, note string) ([]notes.Draft, error)
}

// Store persists action items keyed by ID.
type Store interface {
	Add(ctx context.Context, items ...ActionItem) error
	Get(ctx context.Context, id string) (ActionItem, error)
	Put(ctx context.Context, item ActionItem) error
	List(ctx context.Context) ([]ActionItem, error)
	Delete(ctx context.Context, ids ...string) error
}

type Metrics interface {
	RecordNote(items int)
	RecordNoteFailure()
}

type noopMetrics struct{}

func (noopMetrics) RecordNote(int)     {}
func (noopMetrics) RecordNoteFailure() {}

type Options struct {
	Logger  *slog.Logger
	Metrics Metrics
	Now     func() time.Time
	NewID   func() string
}

// Patch holds the fields to change on an item. Nil fields are left alone.
type Patch struct {
	Task        *string
	Deadline    *string
	Reminder    *string
	Priority    *Priority
	Status      *Status
	Type        *Type
	Responsible *string
}

// Filter narrows List. The zero value matches everything.
type Filter struct {
	Status Status
}

type Orchestrator struct {
	parser  NoteParser
	store   Store
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time
	newID   func() string
}

func NewOrchestrator(parser NoteParser, store Store, opts Options) *Orchestrator {
	o := &Orchestrator{
		parser:  parser,
		store:   store,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.metrics == nil {
		o.metrics = noopMetrics{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = func() string { return uuid.NewString() }
	}
	return o
}

// Submit parses note into action items and stores them.
func (o *Orchestrator) Submit(ctx context.Context, note string) ([]ActionItem, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, ErrEmptyNote
	}

	drafts, err := o.parser.Parse(ctx, note)
	if err != nil {
		o.metrics.RecordNoteFailure()
		return nil, fmt.Errorf("parse note: %w", err)
	}

	now := o.now().UTC()
	items := make([]ActionItem, 0, len(drafts))
	for _, d := range drafts {
		task := strings.TrimSpace(d.Task)
		if task == "" {
			continue
		}
		items = append(items, ActionItem{
			ID:          o.newID(),
			Task:        task,
			Deadline:    strings.TrimSpace(d.Deadline),
			Reminder:    NormalizeReminder(d.Reminder),
			SourceNote:  note,
			Priority:    ParsePriority(d.Priority),
			Status:      StatusPending,
			Type:        ParseType(d.Type),
			Responsible: strings.TrimSpace(d.Responsible),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if len(items) > 0 {
		if err := o.store.Add(ctx, items...); err != nil {
			o.metrics.RecordNoteFailure()
			return nil, fmt.Errorf("store action items: %w", err)
		}
	}

	o.metrics.RecordNote(len(items))
	o.logger.Info("note processed", "items", len(items), "chars", len(note))
	return items, nil
}

// Finalize accepts text from a "send" command.
func (o *Orchestrator) Finalize(ctx context.Context, text string) error {
	_, err := o.Submit(ctx, text)
	return err
}

// Update applies patch to the item ref names. ref is a full ID or a unique prefix.
func (o *Orchestrator) Update(ctx context.Context, ref string, patch Patch) (ActionItem, error) {
	item, err := o.Resolve(ctx, ref)
	if err != nil {
		return ActionItem{}, err
	}

	if patch.Task != nil {
		if task := strings.TrimSpace(*patch.Task); task != "" {
			item.Task = task
		}
	}
	if patch.Deadline != nil {
		item.Deadline = strings.TrimSpace(*patch.Deadline)
	}
	if patch.Reminder != nil {
		item.Reminder = NormalizeReminder(*patch.Reminder)
	}
	if patch.Priority != nil {
		item.Priority = ParsePriority(string(*patch.Priority))
	}
	if patch.Status != nil {
		status, ok := ParseStatus(string(*patch.Status))
		if !ok {
			return ActionItem{}, fmt.Errorf("unknown status %q", *patch.Status)
		}
		item.Status = status
	}
	if patch.Type != nil {
		item.Type = ParseType(string(*patch.Type))
	}
	if patch.Responsible != nil {
		item.Responsible = strings.TrimSpace(*patch.Responsible)
	}
	item.UpdatedAt = o.now().UTC()

	if err := o.store.Put(ctx, item); err != nil {
		return ActionItem{}, fmt.Errorf("update action item: %w", err)
	}
	return item, nil
}

// List returns matching items, oldest first.
func (o *Orchestrator) List(ctx context.Context, filter Filter) ([]ActionItem, error) {
	items, err := o.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list action items: %w", err)
	}
	if filter.Status != "" {
		items = slices.DeleteFunc(items, func(it ActionItem) bool { return it.Status != filter.Status })
	}
	slices.SortStableFunc(items, func(a, b ActionItem) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return items, nil
}

// MarkDone sets every referenced item to done. Refs are resolved before any write.
func (o *Orchestrator) MarkDone(ctx context.Context, refs ...string) ([]ActionItem, error) {
	resolved, err := o.resolveAll(ctx, refs)
	if err != nil {
		return nil, err
	}
	done := StatusDone
	out := make([]ActionItem, 0, len(resolved))
	for _, item := range resolved {
		updated, err := o.Update(ctx, item.ID, Patch{Status: &done})
		if err != nil {
			return out, err
		}
		out = append(out, updated)
	}
	return out, nil
}

// Delete removes the referenced items and returns them.
func (o *Orchestrator) Delete(ctx context.Context, refs ...string) ([]ActionItem, error) {
	resolved, err := o.resolveAll(ctx, refs)
	if err != nil || len(resolved) == 0 {
		return nil, err
	}
	ids := make([]string, len(resolved))
	for i, item := range resolved {
		ids[i] = item.ID
	}
	if err := o.store.Delete(ctx, ids...); err != nil {
		return nil, fmt.Errorf("delete action items: %w", err)
	}
	o.logger.Info("action items deleted", "count", len(ids))
	return resolved, nil
}

// Resolve returns the item whose ID is ref, or the only item whose ID starts with ref.
func (o *Orchestrator) Resolve(ctx context.Context, ref string) (ActionItem, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ActionItem{}, fmt.Errorf("%w: empty id", ErrNotFound)
	}

	item, err := o.store.Get(ctx, ref)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return ActionItem{}, err
	}

	all, err := o.store.List(ctx)
	if err != nil {
		return ActionItem{}, fmt.Errorf("list action items: %w", err)
	}
	var matches []ActionItem
	for _, it := range all {
		if strings.HasPrefix(it.ID, ref) {
			matches = append(matches, it)
		}
	}
	switch len(matches) {
	case 0:
		return ActionItem{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return ActionItem{}, fmt.Errorf("%w: %q matches %d items", ErrAmbiguousID, ref, len(matches))
	}
}

func (o *Orchestrator) resolveAll(ctx context.Context, refs []string) ([]ActionItem, error) {
	out := make([]ActionItem, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		item, err := o.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	return out, nil
}
