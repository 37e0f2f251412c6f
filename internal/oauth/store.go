package oauth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chatlead_backend/platform/apperr"

	"github.com/redis/go-redis/v9"
)

// TokenStore persists one refresh token per (tenant, provider) outside
// process memory. Save overwrites atomically; Delete tolerates absence.
type TokenStore interface {
	Load(ctx context.Context, tenantID, provider string) (string, error)
	Save(ctx context.Context, tenantID, provider, token string) error
	Delete(ctx context.Context, tenantID, provider string) error
}

// ErrNoToken is returned by Load when no refresh token is stored.
var ErrNoToken = apperr.NotFound("no refresh token stored")

// =============================================================================
// File-backed store
// =============================================================================

// FileStore keeps one file per (tenant, provider) under a directory.
// Overwrites go through a temp file plus rename so a crash mid-write never
// leaves a truncated token behind.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns the store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create token dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(tenantID, provider string) string {
	// Sanitize path components; tenant ids come from config, not users,
	// but a stray separator must not escape the token dir.
	clean := func(v string) string {
		return strings.Map(func(r rune) rune {
			switch r {
			case '/', '\\', '.', ' ':
				return '_'
			}
			return r
		}, v)
	}
	name := fmt.Sprintf("%s_refresh_token_%s.txt", clean(provider), clean(tenantID))
	return filepath.Join(s.dir, name)
}

func (s *FileStore) Load(ctx context.Context, tenantID, provider string) (string, error) {
	data, err := os.ReadFile(s.path(tenantID, provider))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("read refresh token: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (s *FileStore) Save(ctx context.Context, tenantID, provider, token string) error {
	target := s.path(tenantID, provider)

	tmp, err := os.CreateTemp(s.dir, ".token-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write refresh token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp token file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod token file: %w", err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace refresh token: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, tenantID, provider string) error {
	err := os.Remove(s.path(tenantID, provider))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// =============================================================================
// Redis-backed store
// =============================================================================

// RedisStore keeps refresh tokens under oauth:refresh:<tenant>:<provider>.
// SET and DEL are atomic, which is all the overwrite/delete contract needs.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects using a redis URL (redis://...).
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opt)}, nil
}

// NewRedisStoreWithClient wraps an existing client (used by tests).
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(tenantID, provider string) string {
	return fmt.Sprintf("oauth:refresh:%s:%s", tenantID, provider)
}

func (s *RedisStore) Load(ctx context.Context, tenantID, provider string) (string, error) {
	token, err := s.client.Get(ctx, redisKey(tenantID, provider)).Result()
	if err == redis.Nil {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("redis get refresh token: %w", err)
	}
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (s *RedisStore) Save(ctx context.Context, tenantID, provider, token string) error {
	if err := s.client.Set(ctx, redisKey(tenantID, provider), token, 0).Err(); err != nil {
		return fmt.Errorf("redis set refresh token: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, tenantID, provider string) error {
	if err := s.client.Del(ctx, redisKey(tenantID, provider)).Err(); err != nil {
		return fmt.Errorf("redis del refresh token: %w", err)
	}
	return nil
}

// Close releases the underlying redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
