package security

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// StationGuard protects the station's local admin surface. The processor API
// proper sits behind the external auth boundary; this only keeps passers-by
// at the kiosk from draining queues or replaying backlog items.
type StationGuard struct {
	redis   *redis.Client
	pinHash string
}

func NewStationGuard(redisClient *redis.Client, pinHash string) *StationGuard {
	return &StationGuard{redis: redisClient, pinHash: pinHash}
}

// OperatorPIN requires the X-Operator-PIN header to match the configured
// bcrypt hash. With no hash configured (development) everything passes.
func (g *StationGuard) OperatorPIN() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if g.pinHash == "" {
				return next(c)
			}

			pin := c.Request().Header.Get("X-Operator-PIN")
			if err := bcrypt.CompareHashAndPassword([]byte(g.pinHash), []byte(pin)); err != nil {
				return c.JSON(403, map[string]string{
					"error": "operator PIN required",
				})
			}
			return next(c)
		}
	}
}

// SyncRateLimit caps manual sync triggers per client so a stuck UI button
// cannot keep the reconciler spinning.
func (g *StationGuard) SyncRateLimit(limit int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := fmt.Sprintf("ratelimit:sync:%s", c.RealIP())

			count, err := g.redis.Incr(context.Background(), key).Result()
			if err == nil {
				if count == 1 {
					g.redis.Expire(context.Background(), key, window)
				}
				if count > int64(limit) {
					return c.JSON(429, map[string]string{
						"error": "Rate limit exceeded. Please try again later.",
					})
				}
			}

			return next(c)
		}
	}
}
