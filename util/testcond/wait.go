package testcond

import (
	"errors"
	"time"
)

var ErrTimeout = errors.New("timeout waiting for condition")

// WaitForCondition polls eval every interval until it reports true, or
// returns ErrTimeout once timeout has passed. eval runs at least once.
func WaitForCondition(eval func() bool, interval time.Duration, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		if eval() {
			return nil
		}
		select {
		case <-deadline.C:
			if eval() {
				return nil
			}
			return ErrTimeout
		case <-tick.C:
		}
	}
}
