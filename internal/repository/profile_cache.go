package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/event-auth/internal/domain"
)

const profileKeyPrefix = "eventauth:profile:"

// cachedProfile is the Redis representation of a user. It never carries
// the password hash.
type cachedProfile struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ProfileCache is a read-through Redis cache of user profiles in front of
// a UserRepository. Redis failures degrade to database reads.
type ProfileCache struct {
	users  UserRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewProfileCache wraps users. A nil client disables caching.
func NewProfileCache(users UserRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *ProfileCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileCache{users: users, client: client, ttl: ttl, logger: logger}
}

// GetProfile returns the user without its password hash.
func (p *ProfileCache) GetProfile(ctx context.Context, id string) (*domain.User, error) {
	if p.client != nil {
		raw, err := p.client.Get(ctx, profileKeyPrefix+id).Bytes()
		switch {
		case err == nil:
			var cached cachedProfile
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				return cached.toUser(), nil
			}
			p.logger.Warn("discarding unreadable cached profile", zap.String("user_id", id))
		case !errors.Is(err, redis.Nil):
			p.logger.Warn("profile cache read failed", zap.String("user_id", id), zap.Error(err))
		}
	}

	user, err := p.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""

	if p.client != nil {
		if payload, err := json.Marshal(fromUser(user)); err == nil {
			if err := p.client.Set(ctx, profileKeyPrefix+id, payload, p.ttl).Err(); err != nil {
				p.logger.Warn("profile cache write failed", zap.String("user_id", id), zap.Error(err))
			}
		}
	}
	return user, nil
}

// Invalidate drops the cached profile for id.
func (p *ProfileCache) Invalidate(ctx context.Context, id string) error {
	if p.client == nil {
		return nil
	}
	return p.client.Del(ctx, profileKeyPrefix+id).Err()
}

func fromUser(u *domain.User) cachedProfile {
	return cachedProfile{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (c cachedProfile) toUser() *domain.User {
	return &domain.User{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Role:      c.Role,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
