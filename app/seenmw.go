package app

import (
	"time"

	"fibo_store/db"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TouchLastSeen bumps users.last_seen_at at most once per throttle window.
func TouchLastSeen(repo *db.Repo, rdb *redis.Client, throttle time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok || p.Email == "" {
			c.Next()
			return
		}

		key := "user:lastseen:" + p.Email
		if ok, _ := rdb.SetNX(c, key, "1", throttle).Result(); ok {
			if err := repo.TouchUserSeen(c, p.Email); err != nil {
				log.Warn("touch last seen", zap.String("email", p.Email), zap.Error(err))
			}
		}
		c.Next()
	}
}
