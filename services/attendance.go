package services

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisAttendanceCounter keeps per-event admission counters in Redis so door
// counts survive server restarts and stay cheap to read from dashboards.
type RedisAttendanceCounter struct {
	redis *redis.Client
}

func NewRedisAttendanceCounter(redisClient *redis.Client) *RedisAttendanceCounter {
	return &RedisAttendanceCounter{redis: redisClient}
}

func attendanceKey(eventID string) string {
	return fmt.Sprintf("attendance:%s", eventID)
}

func (c *RedisAttendanceCounter) IncrAttendance(ctx context.Context, eventID string) error {
	return c.redis.Incr(ctx, attendanceKey(eventID)).Err()
}

func (c *RedisAttendanceCounter) Attendance(ctx context.Context, eventID string) (int64, error) {
	count, err := c.redis.Get(ctx, attendanceKey(eventID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}
