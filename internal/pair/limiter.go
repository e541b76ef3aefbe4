package pair

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/log"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/router"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPLimiter keeps one token bucket per client address.
type IPLimiter struct {
	every time.Duration
	burst int
	now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

func NewIPLimiter(every time.Duration, burst int) *IPLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &IPLimiter{
		every:    every,
		burst:    burst,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

func (l *IPLimiter) Allow(ip string) bool {
	if l.every <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(l.every), l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Prune forgets addresses idle for longer than idle and returns how many were dropped.
func (l *IPLimiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
			removed++
		}
	}
	return removed
}

func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func (l *IPLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !l.Allow(router.ClientIP(c)) {
			log.Print(c).Warn("pairing request rate limited")
			c.Set(fiber.HeaderRetryAfter, retryAfter(l.every))
			return router.ResponseTooManyRequests(c, "Too many pairing requests, try again later")
		}
		return c.Next()
	}
}

func retryAfter(every time.Duration) string {
	seconds := int(every.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
