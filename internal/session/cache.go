package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds a read-through copy of a user's full history in a Redis list.
// Entries are dropped on every append, never patched in place.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewCache(client redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func historyKey(userID string) string {
	return "history:" + userID
}

func generationKey(userID string) string {
	return "history:gen:" + userID
}

// Get returns the cached history and whether the key was present.
func (c *Cache) Get(ctx context.Context, userID string) ([]Message, bool, error) {
	key := historyKey(userID)

	pipe := c.client.Pipeline()
	existsCmd := pipe.Exists(ctx, key)
	rangeCmd := pipe.LRange(ctx, key, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	if existsCmd.Val() == 0 {
		return nil, false, nil
	}

	vals := rangeCmd.Val()
	msgs := make([]Message, 0, len(vals))
	for _, v := range vals {
		var m Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			// A corrupt entry means the snapshot can't be trusted.
			return nil, false, nil
		}
		msgs = append(msgs, m)
	}
	return msgs, true, nil
}

// fillScript replaces the cached history only while the generation counter
// still holds the value read before the repository snapshot was taken.
var fillScript = redis.NewScript(`
if (redis.call('GET', KEYS[2]) or '0') ~= ARGV[1] then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('RPUSH', KEYS[1], unpack(ARGV, 3))
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`)

// Generation returns the invalidation counter for userID. Read it before
// loading the repository and pass it to Set.
func (c *Cache) Generation(ctx context.Context, userID string) (string, error) {
	gen, err := c.client.Get(ctx, generationKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading generation for %s: %w", userID, err)
	}
	return gen, nil
}

// Set replaces the cached history with msgs unless an Invalidate happened
// since gen was read. stored reports whether the snapshot was written.
func (c *Cache) Set(ctx context.Context, userID, gen string, msgs []Message) (stored bool, err error) {
	if len(msgs) == 0 {
		return false, nil
	}

	args := make([]any, 0, len(msgs)+2)
	args = append(args, gen, ttlSeconds(c.ttl))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return false, fmt.Errorf("marshaling message: %w", err)
		}
		args = append(args, string(data))
	}

	n, err := fillScript.Run(ctx, c.client, []string{historyKey(userID), generationKey(userID)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("filling %s: %w", historyKey(userID), err)
	}
	return n == 1, nil
}

// Invalidate drops the cached history for userID and bumps its generation
// so that fills racing with this call are discarded.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	genKey := generationKey(userID)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, historyKey(userID))
	pipe.Incr(ctx, genKey)
	pipe.Expire(ctx, genKey, c.ttl+time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

func ttlSeconds(ttl time.Duration) int64 {
	if s := int64(ttl / time.Second); s > 0 {
		return s
	}
	return 1
}
