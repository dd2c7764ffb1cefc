// Package commands implements the agentrun CLI: chat, run, send, and
// list-agents, the thin adapter spec.md §6 names as out of core scope.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/agentvault/runtime/internal/config"
	"github.com/agentvault/runtime/internal/event"
	"github.com/agentvault/runtime/internal/llm/eino"
	"github.com/agentvault/runtime/internal/loop"
	"github.com/agentvault/runtime/internal/memory"
	"github.com/agentvault/runtime/internal/retry"
	"github.com/agentvault/runtime/internal/session"
	"github.com/agentvault/runtime/internal/tool"
)

// buildRunner wires every collaborator the loop composer needs from a
// resolved config. The CLI is the only place an ANTHROPIC_API_KEY is read.
func buildRunner(ctx context.Context, cfg *config.Config) (*loop.Runner, error) {
	if cfg.AnthropicKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}

	bus := event.NewBus()
	retryMgr := retry.New(retry.Config{
		MaxAttempts:     cfg.Runtime.RetryMaxAttempts,
		InitialInterval: time.Duration(cfg.Runtime.RetryInitialDelayMS) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.Runtime.RetryMaxDelayMS) * time.Millisecond,
		MaxElapsedTime:  time.Duration(cfg.Runtime.RetryMaxElapsedMS) * time.Millisecond,
		Multiplier:      cfg.Runtime.RetryMultiplier,
	})

	sessions := session.NewStore(retryMgr)
	locks := session.NewLockTable()
	mem := memory.NewStore(bus)
	tools := tool.NewRegistry(retryMgr)

	handler, err := eino.NewClaudeHandler(ctx, eino.Config{APIKey: cfg.AnthropicKey})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize the LLM handler: %w", err)
	}

	runner := loop.NewRunner(sessions, locks, mem, bus, retryMgr, handler, tools, tool.DefaultDefs())
	runner.Context = loop.ContextConfig{
		ContextWindow:         cfg.Runtime.ContextWindow,
		ReserveTokens:         cfg.Runtime.ReserveTokens,
		FlushThreshold:        cfg.Runtime.FlushThreshold,
		CompactionThreshold:   cfg.Runtime.CompactionThreshold,
		MaxHistoryMessages:    cfg.Runtime.MaxHistoryMessages,
		KeepRecentToolResults: cfg.Runtime.KeepRecentToolResults,
	}
	runner.Execute = loop.ExecuteConfig{
		MaxToolIterations: cfg.Runtime.MaxToolIterations,
		ExecutionTimeout:  time.Duration(cfg.Runtime.ExecutionTimeoutMS) * time.Millisecond,
		ToolTimeout:       time.Duration(cfg.Runtime.ToolTimeoutMS) * time.Millisecond,
		MaxRetries:        cfg.Runtime.RetryMaxAttempts,
		RetryBaseDelay:    time.Duration(cfg.Runtime.RetryInitialDelayMS) * time.Millisecond,
	}

	return runner, nil
}

// printEvents subscribes to every event on bus and writes a one-line
// summary to stderr — used by chat's interactive mode for live feedback.
func printEvents(bus *event.Bus, printf func(format string, args ...any)) func() {
	return bus.SubscribeAll(func(env event.Envelope) {
		printf("[%s] %s\n", env.Type, env.SessionID)
	})
}
