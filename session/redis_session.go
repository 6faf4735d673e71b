package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
)

var ErrStateNotFound = errors.New("unknown or expired state")

// Store holds short-lived ceremony data: OAuth state values and WebAuthn
// session data between begin and finish.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store { return &Store{rdb: rdb, ttl: ttl} }

func regKey(email string) string   { return fmt.Sprintf("webauthn:reg:%s", strings.ToLower(email)) }
func authKey(sid string) string    { return fmt.Sprintf("webauthn:auth:%s", sid) }
func oauthKey(state string) string { return fmt.Sprintf("oauth:state:%s", state) }

// SaveOAuthState remembers where to send the browser after the callback.
func (s *Store) SaveOAuthState(ctx context.Context, state, redirect string) error {
	return s.rdb.Set(ctx, oauthKey(state), redirect, s.ttl).Err()
}

// ConsumeOAuthState is single use: a replayed callback finds nothing.
func (s *Store) ConsumeOAuthState(ctx context.Context, state string) (string, error) {
	v, err := s.rdb.GetDel(ctx, oauthKey(state)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrStateNotFound
	}
	return v, err
}

func (s *Store) SaveReg(ctx context.Context, email string, sd *webauthn.SessionData) error {
	return s.save(ctx, regKey(email), sd)
}

func (s *Store) LoadReg(ctx context.Context, email string) (*webauthn.SessionData, error) {
	return s.load(ctx, regKey(email))
}

func (s *Store) DelReg(ctx context.Context, email string) {
	_ = s.rdb.Del(ctx, regKey(email)).Err()
}

func (s *Store) SaveAuth(ctx context.Context, sid string, sd *webauthn.SessionData) error {
	return s.save(ctx, authKey(sid), sd)
}

func (s *Store) LoadAuth(ctx context.Context, sid string) (*webauthn.SessionData, error) {
	return s.load(ctx, authKey(sid))
}

func (s *Store) DelAuth(ctx context.Context, sid string) { _ = s.rdb.Del(ctx, authKey(sid)).Err() }

func (s *Store) save(ctx context.Context, k string, sd *webauthn.SessionData) error {
	b, err := json.Marshal(sd)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, k, b, s.ttl).Err()
}

func (s *Store) load(ctx context.Context, k string) (*webauthn.SessionData, error) {
	b, err := s.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, err
	}
	var sd webauthn.SessionData
	if err := json.Unmarshal(b, &sd); err != nil {
		return nil, err
	}
	return &sd, nil
}
