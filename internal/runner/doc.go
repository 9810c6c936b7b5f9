// Package runner runs browser audits in isolated workers.
//
// A Runner spawns one worker per invocation, hands it the request, captures
// its stdout and stderr into a LogSink and waits for the worker's single
// message. A failure message becomes a *WorkerFailure carrying the captured
// log. A result message names a directory holding the persisted artifacts;
// the runner reloads them and removes the directory before returning.
//
// Workers run either as child processes of the current binary
// (ProcessSpawner) or as goroutines (GoroutineSpawner). Only encoded messages
// and the assets directory cross between runner and worker.
package runner
