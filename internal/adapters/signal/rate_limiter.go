package signal

import "golang.org/x/time/rate"

// newConnLimiter returns the token bucket for one connection's inbound messages.
func newConnLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
