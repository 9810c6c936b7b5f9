// Package proc holds the platform specific bits of managing child processes:
// putting a worker in its own process group and tearing the whole group down.
package proc
