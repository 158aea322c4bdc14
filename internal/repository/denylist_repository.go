package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DenylistRepository keeps a per-user revocation cutoff in Redis so access
// tokens issued before a password change can be rejected ahead of their
// natural expiry. Access tokens are otherwise stateless. The repository is
// nil-client tolerant: without Redis, tokens stay valid until they expire.
type DenylistRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewDenylistRepository constructs a denylist repository.
func NewDenylistRepository(client *redis.Client, logger *zap.Logger) *DenylistRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DenylistRepository{client: client, logger: logger}
}

func denylistKey(userID string) string {
	return fmt.Sprintf("auth:denylist:%s", userID)
}

// RevokeUser records a cutoff: access tokens for userID issued before now are
// rejected. The entry lives as long as such tokens could still be presented.
func (r *DenylistRepository) RevokeUser(ctx context.Context, userID string, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	cutoff := time.Now().UTC().Unix()
	if err := r.client.Set(ctx, denylistKey(userID), cutoff, ttl).Err(); err != nil {
		return fmt.Errorf("denylist set %s: %w", userID, err)
	}
	return nil
}

// IsRevoked reports whether a token issued at issuedAt for userID falls
// before the recorded cutoff. Redis errors fail open with a warning; the
// denylist is a hardening layer, not the source of truth.
func (r *DenylistRepository) IsRevoked(ctx context.Context, userID string, issuedAt time.Time) bool {
	if r.client == nil {
		return false
	}
	raw, err := r.client.Get(ctx, denylistKey(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("denylist lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		return false
	}
	cutoff, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return issuedAt.Unix() < cutoff
}
