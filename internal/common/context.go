package common

import (
	"context"
	"log/slog"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRunID    contextKey = "run_id"
	ContextKeyContract contextKey = "contract"
	ContextKeyLogger   contextKey = "logger"
)

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// RunIDFromContext extracts the run ID from context
func RunIDFromContext(ctx context.Context) string {
	if runID, ok := ctx.Value(ContextKeyRunID).(string); ok {
		return runID
	}
	return ""
}

// WithContract adds the contract being processed to the context
func WithContract(ctx context.Context, contract string) context.Context {
	return context.WithValue(ctx, ContextKeyContract, contract)
}

// ContractFromContext extracts the contract from context
func ContractFromContext(ctx context.Context) string {
	if contract, ok := ctx.Value(ContextKeyContract).(string); ok {
		return contract
	}
	return ""
}

// WithLogger stores a logger in the context
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ContextKeyLogger, logger)
}

// LoggerFromContext returns the context logger enriched with run and contract
// attributes, falling back to slog.Default().
func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(ContextKeyLogger).(*slog.Logger)
	if !ok || logger == nil {
		logger = slog.Default()
	}
	if runID := RunIDFromContext(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}
	if contract := ContractFromContext(ctx); contract != "" {
		logger = logger.With("contract", contract)
	}
	return logger
}
