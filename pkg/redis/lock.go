package redis

import (
	"context"
	"fmt"
	"time"
)

const unlockScriptName = "compare_and_delete"

// unlockScript deletes the key only while it still holds the caller's token
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// TryLock sets key to owner if it is free. The lock expires after ttl so a
// crashed holder never blocks others for long.
func (c *Client) TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// Unlock releases key if owner still holds it
func (c *Client) Unlock(ctx context.Context, key, owner string) (bool, error) {
	n, err := c.EvalWithFallback(ctx, unlockScriptName, unlockScript, []string{key}, owner).Int64()
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", key, err)
	}
	return n == 1, nil
}
