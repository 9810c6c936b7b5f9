package worker

import (
	"context"
	"os"
)

// EnvWorker marks a process started by the orchestrator as a worker.
const EnvWorker = "AUDITRUNNER_WORKER"

type workerKey struct{}

// WithinWorker marks ctx as running inside a worker.
func WithinWorker(ctx context.Context) context.Context {
	return context.WithValue(ctx, workerKey{}, true)
}

// IsWorker reports whether ctx was marked by WithinWorker.
func IsWorker(ctx context.Context) bool {
	v, _ := ctx.Value(workerKey{}).(bool)
	return v
}

// IsWorkerProcess reports whether the current process was started as a worker.
func IsWorkerProcess() bool {
	return os.Getenv(EnvWorker) == "1"
}
