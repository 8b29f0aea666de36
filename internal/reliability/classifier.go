// Package reliability classifies executor failures for the redelivery
// decision: transient faults are worth another delivery attempt, permanent
// ones are not.
package reliability

// RetryableStatus reports whether an executor HTTP status indicates a
// transient condition.
func RetryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
