package dispatch

import "time"

// RetryDelay returns how long to wait before the attempt after n consecutive
// failures: base doubled per prior failure, capped at max. Both trigger paths
// use this same curve.
func RetryDelay(failures int, base, max time.Duration) time.Duration {
	if failures < 1 {
		failures = 1
	}
	// Guard the shift; anything past 20 doublings is over the cap already.
	if failures > 20 {
		return max
	}
	delay := base << (failures - 1)
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}
