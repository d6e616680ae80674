package cli

import (
	"context"
	"log/slog"

	"github.com/mahavishnu/mahavishnu/internal/orchestrator"
	"github.com/mahavishnu/mahavishnu/internal/task"
)

// newLogExecutor returns the default execution backend: it logs the
// dispatch and reports success. Real backends (shell runners, remote
// agents) plug in through the orchestrator.Executor interface.
func newLogExecutor(logger *slog.Logger) orchestrator.Executor {
	return orchestrator.ExecutorFunc(func(ctx context.Context, t *task.Task, poolID, workerID string) error {
		logger.Info("executing task",
			"task_id", t.ID,
			"title", t.Title,
			"pool_id", poolID,
			"worker_id", workerID)
		return ctx.Err()
	})
}
