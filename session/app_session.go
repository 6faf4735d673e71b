package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found or expired")

// AppSessionStore keeps refresh sessions. A session remembers the identity
// that signed in, never the role: the role is derived again on every refresh.
type AppSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAppSessionStore(rdb *redis.Client, ttl time.Duration) *AppSessionStore {
	return &AppSessionStore{rdb: rdb, ttl: ttl}
}

type AppSession struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func (s *AppSessionStore) TTL() time.Duration { return s.ttl }

func key(id string) string { return fmt.Sprintf("app:sess:%s", id) }
func userSetKey(email string) string {
	return fmt.Sprintf("app:user_sessions:%s", strings.ToLower(email))
}

func (s *AppSessionStore) Create(ctx context.Context, id string, as AppSession) error {
	now := time.Now()
	as.Email = strings.ToLower(as.Email)
	as.IssuedAt = now.Unix()
	as.ExpiresAt = now.Add(s.ttl).Unix()
	b, err := json.Marshal(as)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key(id), b, s.ttl)
	pipe.SAdd(ctx, userSetKey(as.Email), id)
	pipe.Expire(ctx, userSetKey(as.Email), s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *AppSessionStore) Get(ctx context.Context, id string) (*AppSession, error) {
	b, err := s.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var as AppSession
	if err := json.Unmarshal(b, &as); err != nil {
		return nil, err
	}
	return &as, nil
}

func (s *AppSessionStore) Delete(ctx context.Context, id string) error {
	as, _ := s.Get(ctx, id) // already gone is fine
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key(id))
	if as != nil {
		pipe.SRem(ctx, userSetKey(as.Email), id)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// RevokeAllForUser signs a user out everywhere, e.g. when the account is deleted.
func (s *AppSessionStore) RevokeAllForUser(ctx context.Context, email string) error {
	ids, err := s.rdb.SMembers(ctx, userSetKey(email)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	pipe := s.rdb.TxPipeline()
	for _, sid := range ids {
		pipe.Del(ctx, key(sid))
	}
	pipe.Del(ctx, userSetKey(email))
	_, err = pipe.Exec(ctx)
	return err
}
