package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const withdrawalLockPrefix = "lock:withdrawal:"

// releaseScript deletes the lock only while it still carries our token, so
// an instance whose lock expired cannot free a lock someone else now holds.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore guards payout submission per withdrawal across instances.
type LockStore struct {
	client *redis.Client
	owner  string
}

// NewLockStore creates a LockStore whose locks are tagged with a token
// unique to this process.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client, owner: uuid.NewString()}
}

// AcquireWithdrawalLock takes the payout lock for ttl. Returns false if
// another holder has it.
func (s *LockStore) AcquireWithdrawalLock(ctx context.Context, withdrawalID string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, withdrawalLockPrefix+withdrawalID, s.owner, ttl).Result()
}

// ReleaseWithdrawalLock frees the lock if this process still owns it.
func (s *LockStore) ReleaseWithdrawalLock(ctx context.Context, withdrawalID string) error {
	err := releaseScript.Run(ctx, s.client, []string{withdrawalLockPrefix + withdrawalID}, s.owner).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}
