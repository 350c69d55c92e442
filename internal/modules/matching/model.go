// README: Candidate computation policy values for order dispatch.
package matching

import "time"

const (
	// dispatchKeyTTL bounds the per-order dispatch bookkeeping keys
	// (orders resolve or age out of the available list well within a day).
	dispatchKeyTTL = 24 * time.Hour
)
