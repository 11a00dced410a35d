package routing

import (
	"sync"
)

// HealthChecker scores liquidity venues by recent reliability using an
// exponentially weighted success rate. Venues below the threshold are
// excluded from routing entirely.
type HealthChecker struct {
	mu        sync.RWMutex
	scores    map[string]float64
	alpha     float64
	threshold float64
}

// NewHealthChecker constructs a venue health tracker. Unknown venues start
// healthy.
func NewHealthChecker(alpha, threshold float64) *HealthChecker {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.2
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	return &HealthChecker{
		scores:    make(map[string]float64),
		alpha:     alpha,
		threshold: threshold,
	}
}

// ReportSuccess moves the venue's score toward 1.
func (h *HealthChecker) ReportSuccess(venue string) {
	h.report(venue, 1)
}

// ReportFailure moves the venue's score toward 0.
func (h *HealthChecker) ReportFailure(venue string) {
	h.report(venue, 0)
}

func (h *HealthChecker) report(venue string, outcome float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	score, ok := h.scores[venue]
	if !ok {
		score = 1
	}
	h.scores[venue] = h.alpha*outcome + (1-h.alpha)*score
}

// Score returns the venue's current health score in [0, 1].
func (h *HealthChecker) Score(venue string) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	score, ok := h.scores[venue]
	if !ok {
		return 1
	}
	return score
}

// Healthy reports whether the venue clears the routing threshold.
func (h *HealthChecker) Healthy(venue string) bool {
	return h.Score(venue) >= h.threshold
}

// Eligible filters a venue list down to healthy members.
func (h *HealthChecker) Eligible(venues []string) []string {
	out := make([]string, 0, len(venues))
	for _, v := range venues {
		if h.Healthy(v) {
			out = append(out, v)
		}
	}
	return out
}
