package restart

import "time"

// ShouldRetryRestart decides whether a crashed container is worth another
// restart attempt. A clean exit (code 0, not OOM-killed) means the process
// stopped on its own terms rather than crashing, so it is never retried —
// only an actual crash trips the restart loop. Once the attempt budget is
// spent the circuit breaker stays open regardless of exit code.
func ShouldRetryRestart(exitCode int, oomKilled bool, consecutiveFailures, maxAttempts int) bool {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if consecutiveFailures >= maxAttempts {
		return false
	}
	if exitCode == 0 && !oomKilled {
		return false
	}
	return true
}

// BackoffDelay computes the delay before the nth restart attempt:
// exponential from backoffBase, doubling per consecutive failure, capped
// at backoffCap.
func BackoffDelay(consecutiveFailures int) time.Duration {
	d := backoffBase
	for i := 1; i < consecutiveFailures; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}
