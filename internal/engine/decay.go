package engine

import (
	"math"
	"time"
)

// TemporalScore returns the recency score of an event at now:
// 2^(-age/halfLife), with age floored at zero. Future events score 1.
func TemporalScore(now, eventDate time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 0
	}
	age := now.Sub(eventDate)
	if age < 0 {
		age = 0
	}
	score := math.Pow(2, -float64(age)/float64(halfLife))
	return math.Min(math.Max(score, 0.0), 1.0)
}
