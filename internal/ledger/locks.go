package ledger

import "sync"

const (
	lockShards     = 64
	hashMultiplier = 31
)

// keyedLocks serializes work per evaluation id. Ids are spread over a fixed
// set of mutex shards, so unrelated evaluations only contend on hash collisions.
type keyedLocks struct {
	shards [lockShards]sync.Mutex
}

func (k *keyedLocks) shard(key string) *sync.Mutex {
	var hash uint32
	for i := 0; i < len(key); i++ {
		hash = hash*hashMultiplier + uint32(key[i])
	}
	return &k.shards[hash%lockShards]
}

// lock acquires the shard for key and returns its release function.
func (k *keyedLocks) lock(key string) func() {
	m := k.shard(key)
	m.Lock()
	return m.Unlock
}
