package stream

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/redis/go-redis/v9"
)

// ReplayCache remembers signatures of deliveries that were already handled
// inside the tolerance window. A delivery is only remembered once it has been
// applied or deliberately ignored, so a failed apply stays retryable.
type ReplayCache struct {
	client *redis.Client
	prefix string
}

func NewReplayCache(client *redis.Client) *ReplayCache {
	if client == nil {
		return nil
	}
	return &ReplayCache{client: client, prefix: "stream:webhook:sig:"}
}

// Seen reports whether a delivery with this signature was already handled.
// Errors are returned so the caller can decide to proceed without the cache.
func (c *ReplayCache) Seen(ctx context.Context, signature string) (bool, error) {
	if c == nil {
		return false, nil
	}
	n, err := c.client.Exists(ctx, c.key(signature)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Remember marks a signature as handled for twice the tolerance window.
func (c *ReplayCache) Remember(ctx context.Context, signature string) error {
	if c == nil {
		return nil
	}
	return c.client.Set(ctx, c.key(signature), 1, 2*SignatureTolerance).Err()
}

func (c *ReplayCache) key(signature string) string {
	sum := sha256.Sum256([]byte(signature))
	return c.prefix + hex.EncodeToString(sum[:])
}
