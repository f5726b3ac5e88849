package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dcs:ingest:"

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Lock is a per-document lease shared by every api and worker process.
// Each acquisition stores a fresh token and only that token can release it.
type Lock struct {
	client  *redis.Client
	ownerID string
}

func NewLock(client *redis.Client) *Lock {
	return &Lock{client: client, ownerID: ownerID()}
}

func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func ownerID() string {
	hostname, _ := os.Hostname()
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), hex.EncodeToString(buf))
}

func (l *Lock) Acquire(ctx context.Context, documentID string, ttl time.Duration) (string, bool, error) {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	token := l.ownerID + ":" + hex.EncodeToString(buf)

	ok, err := l.client.SetNX(ctx, keyPrefix+documentID, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", documentID, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release is a no-op when the lease expired or belongs to someone else.
func (l *Lock) Release(ctx context.Context, documentID, token string) error {
	if token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{keyPrefix + documentID}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lock %s: %w", documentID, err)
	}
	return nil
}

func (l *Lock) IsLocked(ctx context.Context, documentID string) (bool, error) {
	n, err := l.client.Exists(ctx, keyPrefix+documentID).Result()
	if err != nil {
		return false, fmt.Errorf("check lock %s: %w", documentID, err)
	}
	return n > 0, nil
}
