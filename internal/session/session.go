// Package session keeps the signed-in identity that every customer operation
// receives explicitly. Sessions start when the auth proxy vouches for an email
// and end at sign-out or TTL expiry.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmehdipour/cablesync/internal/model"
	"github.com/redis/go-redis/v9"
)

var ErrNoSession = errors.New("session not found or expired")

// Identity is who is calling and whether they are staff.
type Identity struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Admin     bool   `json:"admin"`
}

// CustomerID is the record key owned by this identity.
func (i Identity) CustomerID() string { return model.CustomerID(i.Email) }

// Actor maps the identity to a lifecycle actor.
func (i Identity) Actor() model.Actor {
	if i.Admin {
		return model.ActorAdmin
	}
	return model.ActorCustomer
}

// SplitName breaks a display name into first and remaining parts.
func SplitName(display string) (first, last string) {
	parts := strings.Fields(display)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

type Store struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewStore(rdb *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "sess:"
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Create stores id under a fresh random token.
func (s *Store) Create(ctx context.Context, id Identity) (string, error) {
	id.Email = strings.TrimSpace(id.Email)
	if id.Email == "" {
		return "", errors.New("session: empty email")
	}
	b, err := json.Marshal(id)
	if err != nil {
		return "", err
	}

	token := uuid.NewString()
	if err := s.rdb.Set(ctx, s.prefix+token, b, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

func (s *Store) Get(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoSession
	}
	b, err := s.rdb.Get(ctx, s.prefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return Identity{}, ErrNoSession
	}
	if err != nil {
		return Identity{}, fmt.Errorf("load session: %w", err)
	}

	var id Identity
	if err := json.Unmarshal(b, &id); err != nil {
		return Identity{}, fmt.Errorf("decode session: %w", err)
	}
	return id, nil
}

// Delete ends the session; deleting an unknown token is not an error.
func (s *Store) Delete(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, s.prefix+token).Err()
}
