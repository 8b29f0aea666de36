package analysis

import (
	"strings"
	"time"
)

// Throttler decides when an updated narrative is worth forwarding for
// analysis, so the downstream service is not called on every transcript
// fragment.
type Throttler struct {
	minInterval   time.Duration
	maxInterval   time.Duration
	wordThreshold int

	lastSentAt    time.Time
	lastNarrative string
	lastWordCount int
}

func NewThrottler(minInterval, maxInterval time.Duration, wordThreshold int) *Throttler {
	if minInterval <= 0 {
		minInterval = 15 * time.Second
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}
	if wordThreshold <= 0 {
		wordThreshold = 20
	}
	return &Throttler{
		minInterval:   minInterval,
		maxInterval:   maxInterval,
		wordThreshold: wordThreshold,
	}
}

// ShouldSend applies the forwarding rules: never before the minimum interval,
// never for an unchanged narrative, always after the maximum interval, and in
// between only once enough new words accumulated.
func (t *Throttler) ShouldSend(narrative string, now time.Time) bool {
	sinceLast := now.Sub(t.lastSentAt)
	if sinceLast < t.minInterval {
		return false
	}
	if narrative == t.lastNarrative {
		return false
	}
	if sinceLast >= t.maxInterval {
		return true
	}
	return wordCount(narrative)-t.lastWordCount >= t.wordThreshold
}

// MarkSent records that the narrative was forwarded.
func (t *Throttler) MarkSent(narrative string, now time.Time) {
	t.lastSentAt = now
	t.lastNarrative = narrative
	t.lastWordCount = wordCount(narrative)
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
