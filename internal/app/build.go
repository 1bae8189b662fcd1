package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rbright/jotter/internal/config"
	"github.com/rbright/jotter/internal/deepgram"
	"github.com/rbright/jotter/internal/dictation"
	"github.com/rbright/jotter/internal/gemini"
	"github.com/rbright/jotter/internal/notes"
	"github.com/rbright/jotter/internal/store"
	"github.com/rbright/jotter/internal/tasks"
)

// local is an orchestrator over a store opened by this process.
type local struct {
	orchestrator *tasks.Orchestrator
	store        *store.Badger
}

func (l local) Close() {
	_ = l.store.Close()
}

// openLocal opens the store and, when withParser is set, the note parser.
// List-only callers never need provider credentials.
func (r Runner) openLocal(ctx context.Context, cfg config.Config, logger *slog.Logger, withParser bool) (local, error) {
	var parser tasks.NoteParser = r.Parser
	if parser == nil && withParser {
		built, err := buildParser(ctx, cfg)
		if err != nil {
			return local{}, err
		}
		parser = built
	}

	db, err := openStore(cfg, logger)
	if err != nil {
		return local{}, err
	}

	orchestrator := tasks.NewOrchestrator(parser, db, tasks.Options{Logger: logger})
	return local{orchestrator: orchestrator, store: db}, nil
}

func openStore(cfg config.Config, logger *slog.Logger) (*store.Badger, error) {
	path := strings.TrimSpace(cfg.Store.Path)
	if path == "" {
		resolved, err := config.DefaultStorePath()
		if err != nil {
			return nil, err
		}
		path = resolved
	}
	return store.Open(path, logger)
}

func buildParser(ctx context.Context, cfg config.Config) (tasks.NoteParser, error) {
	switch cfg.Notes.Provider {
	case config.ProviderOpenAI:
		return notes.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	case config.ProviderGemini, "":
		return notes.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.NotesModel)
	default:
		return nil, fmt.Errorf("unsupported notes provider %q", cfg.Notes.Provider)
	}
}

func buildProvider(ctx context.Context, cfg config.Config) (dictation.Provider, error) {
	switch cfg.Dictation.Provider {
	case config.ProviderDeepgram:
		if strings.TrimSpace(cfg.Deepgram.APIKey) == "" {
			return nil, errors.New("DEEPGRAM_API_KEY is not configured")
		}
		return deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.BaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: true,
		}), nil
	case config.ProviderGemini, "":
		return gemini.NewLiveProvider(ctx, gemini.Config{
			APIKey: cfg.Gemini.APIKey,
			Model:  cfg.Dictation.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported dictation provider %q", cfg.Dictation.Provider)
	}
}

func dictationConfig(cfg config.Config) dictation.Config {
	return dictation.Config{
		Model:                cfg.Dictation.Model,
		TranscriptionEnabled: true,
		ResponseModality:     cfg.Dictation.ResponseModality,
		SystemPrompt:         cfg.Dictation.SystemPrompt,
	}
}
