package app

import (
	"context"
	"fmt"

	"github.com/fitron/coachd/internal/brain"
	"github.com/fitron/coachd/internal/coach"
	"github.com/fitron/coachd/internal/config"
	"github.com/fitron/coachd/internal/httpapi"
	"github.com/fitron/coachd/internal/memory"
	"github.com/fitron/coachd/internal/notify"
	"github.com/fitron/coachd/internal/observability"
	"github.com/fitron/coachd/internal/session"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Registry
	Orchestrator *coach.Orchestrator
	Metrics      *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	client, err := brain.NewClient(brain.Config{
		Mode:    cfg.BrainMode,
		HTTPURL: cfg.BrainHTTPURL,
		Model:   cfg.BrainModel,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("brain client init failed: %w", err)
	}

	sessions := session.NewRegistry(cfg.ContextWindowSize)
	notifier := notify.New(cfg.EscalationWebhookURL)

	orchestrator := coach.New(
		coach.Config{
			WindowSize:        cfg.ContextWindowSize,
			MaxMessageBytes:   cfg.MaxMessageBytes,
			PromptBudgetBytes: cfg.PromptBudgetBytes,
			GenerationTimeout: cfg.GenerationTimeout,
		},
		sessions,
		store,
		client,
		notifier,
		metrics,
	)

	api := httpapi.New(cfg, orchestrator, metrics)

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Metrics:      metrics,
		Cleanup:      store.Close,
	}, nil
}
