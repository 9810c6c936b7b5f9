/*
Package resilience stops sending work to a failing dependency.

# Overview

A Breaker counts consecutive failures of the calls it guards. Once Threshold
is reached it opens and rejects calls with ErrCircuitOpen until Cooldown has
passed. It then lets a single probe through: a successful probe closes it
again, a failed one reopens it for another Cooldown.

The audit service guards worker spawns with it, so a host that cannot start
workers (no browser installed, fork limits) answers quickly instead of
paying a full worker startup per request.

# Usage

	breaker := resilience.New("workers", resilience.Settings{
		Threshold: 5,
		Cooldown:  30 * time.Second,
		IsFailure: func(err error) bool { return errors.As(err, new(*runner.ExitError)) },
	})

	err := breaker.Do(func() error {
		out, err = r.Run(ctx, target, cfg, logger, opts)
		return err
	})

# States

	Closed --[Threshold failures]-> Open --[Cooldown]-> HalfOpen --[probe ok]-> Closed
	                                  ^                     |
	                                  +----[probe failed]---+
*/
package resilience
