package middleware

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
)

// HeaderSourceSystem lets producers identify themselves to the intake limiter.
const HeaderSourceSystem = "X-Source-System"

// RateLimiterConfig holds configuration for intake rate limiting
type RateLimiterConfig struct {
	// Max requests per window and key
	Max int
	// Window duration
	Window time.Duration
	// KeyGenerator picks the bucket a request is counted against
	KeyGenerator func(c *fiber.Ctx) string
}

// DefaultRateLimiterConfig counts per producing system, falling back to the
// client address when the producer does not announce itself.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Max:    600,
		Window: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if system := strings.TrimSpace(c.Get(HeaderSourceSystem)); system != "" {
				return "system:" + system
			}
			return "ip:" + c.IP()
		},
	}
}

type bucket struct {
	count      int
	windowEnd  time.Time
	lastAccess time.Time
}

// RateLimiter is a fixed window limiter kept in process memory.
type RateLimiter struct {
	config  RateLimiterConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	done    chan struct{}
	once    sync.Once
	now     func() time.Time
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if config.Max <= 0 {
		config.Max = def.Max
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = def.KeyGenerator
	}

	rl := &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
		now:     time.Now,
	}

	go rl.cleanup()

	return rl
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := rl.config.KeyGenerator(c)
		now := rl.now()

		rl.mu.Lock()
		b, ok := rl.buckets[key]
		if !ok || now.After(b.windowEnd) {
			b = &bucket{windowEnd: now.Add(rl.config.Window)}
			rl.buckets[key] = b
		}
		b.count++
		b.lastAccess = now
		count := b.count
		windowEnd := b.windowEnd
		rl.mu.Unlock()

		remaining := rl.config.Max - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Max))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", windowEnd.Format(time.RFC3339))

		if count > rl.config.Max {
			c.Set("Retry-After", strconv.Itoa(int(windowEnd.Sub(now).Seconds())+1))
			return domain.ErrRateLimitExceeded
		}

		return c.Next()
	}
}

// cleanup removes buckets idle for two windows
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, b := range rl.buckets {
				if now.Sub(b.lastAccess) > 2*rl.config.Window {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
