package repository

import (
	"support_chat/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Repositories struct {
	User      UserRepository
	Chat      ChatRepository
	RateLimit RateLimitRepository
}

func NewRepositories(db *pgxpool.Pool, rdb *redis.Client, log logger.Logger) *Repositories {
	return &Repositories{
		User:      NewUserRepository(db, log),
		Chat:      NewChatRepository(db, log),
		RateLimit: NewRateLimitRepository(rdb, log),
	}
}
