package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ingeweb/contactws/internal/apperror"
)

// TaskName identifies the reconciliation in the task runner.
const TaskName = "sync_users"

// Task adapts an Engine to the task runner.
type Task struct {
	engine  *Engine
	enabled bool
	logger  *slog.Logger
}

func NewTask(engine *Engine, logger *slog.Logger) *Task {
	return &Task{engine: engine, enabled: engine.policy.Enabled, logger: logger}
}

func (t *Task) Name() string { return TaskName }

// Execute runs the engine. Remote directory failures end the run without
// mutation and are not reported to the runner; the next schedule retries.
func (t *Task) Execute(ctx context.Context) error {
	if !t.enabled {
		t.logger.Info("contactws authentication is disabled, skipping synchronization")
		return nil
	}

	_, err := t.engine.Run(ctx)
	if errors.Is(err, apperror.ErrRemote) {
		t.logger.Error("sarh synchronization aborted", slog.String("error", err.Error()))
		return nil
	}
	return err
}
