package main

import (
	"context"
	"fmt"

	"tasknerd/internal/config"
	"tasknerd/internal/extract"
	"tasknerd/internal/logging"
	"tasknerd/internal/orchestrator"
	"tasknerd/internal/perception"
	"tasknerd/internal/store"
	"tasknerd/internal/types"
)

// engine bundles the opened database with the orchestrator built on it.
type engine struct {
	db    *store.DB
	tasks *store.Tasks
	orch  *orchestrator.Orchestrator
	owner string
}

// openEngine opens the database named by c and wires the turn pipeline.
func openEngine(ctx context.Context, c *config.Config) (*engine, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "openEngine")
	defer timer.Stop()

	db, err := store.Open(ctx, c.Database.Path, store.Options{
		BusyTimeout: c.GetBusyTimeout(),
		Retry: store.RetryPolicy{
			Attempts: c.Database.RetryAttempts,
			Backoff:  c.GetRetryBackoff(),
			Factor:   2,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open task database: %w", err)
	}

	dates, err := newDateParser(c)
	if err != nil {
		db.Close()
		return nil, err
	}

	opts := orchestrator.Options{
		ToolTimeout:       c.GetToolTimeout(),
		LockTimeout:       c.GetLockTimeout(),
		Matcher:           c.Matcher,
		Dates:             dates,
		MinHintConfidence: c.Generative.MinConfidence,
	}
	if s := newSuggester(ctx, c, db.Traces()); s != nil {
		opts.Suggester = s
		if c.Generative.RecordTraces && c.Generative.TraceRetentionDays > 0 {
			if _, err := db.Traces().Prune(ctx, c.Generative.TraceRetentionDays); err != nil {
				logging.Get(logging.CategoryBoot).Warn("Trace pruning failed: %v", err)
			}
		}
	}

	tasks := db.Tasks()
	return &engine{
		db:    db,
		tasks: tasks,
		orch:  orchestrator.New(tasks, db.Conversations(), opts),
		owner: c.Conversation.DefaultOwner,
	}, nil
}

func (e *engine) Close() error {
	return e.db.Close()
}

func newDateParser(c *config.Config) (*extract.DateParser, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	hour, minute, err := c.DueTime()
	if err != nil {
		return nil, err
	}
	return extract.NewDateParser(
		extract.WithLocation(loc),
		extract.WithMaxFutureYears(c.Dates.MaxFutureYears),
		extract.WithDefaultDueTime(hour, minute),
	), nil
}

// newSuggester returns nil when generative help is off or unavailable;
// turns then run on the deterministic classifier alone.
func newSuggester(ctx context.Context, c *config.Config, traces types.TraceStore) types.Suggester {
	if !c.SuggesterEnabled() {
		return nil
	}
	gemini, err := perception.NewGeminiGenerator(ctx, c.Generative.APIKey, c.Generative.Model)
	if err != nil {
		logging.Get(logging.CategoryBoot).Warn("Generative suggester disabled: %v", err)
		return nil
	}
	logging.Boot("Generative suggester enabled (%s)", gemini.Name())

	var gen perception.Generator = gemini
	if c.Generative.RecordTraces && traces != nil {
		gen = perception.NewTracingGenerator(gemini, traces, gemini.Name())
	}
	return perception.NewSuggester(gen, c.GetGenerativeTimeout())
}
