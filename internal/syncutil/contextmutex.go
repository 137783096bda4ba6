// Package syncutil provides keyed locking for per-user engine state.
package syncutil

import (
	"context"
	"hash/fnv"
)

const shardCount = 256

// ContextShardedMutex serializes work on string keys using a fixed pool of
// channel-based locks. Memory stays bounded no matter how many users the
// engine tracks; keys hashing to the same shard occasionally contend. The
// channel implementation lets a waiter give up when its context ends,
// which a sync.Mutex cannot offer.
type ContextShardedMutex struct {
	shards [shardCount]chan struct{}
}

// NewContextShardedMutex returns a mutex pool with every shard unlocked.
func NewContextShardedMutex() *ContextShardedMutex {
	m := &ContextShardedMutex{}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
		m.shards[i] <- struct{}{}
	}
	return m
}

// LockContext acquires the shard for key. On success it returns the unlock
// function, which the caller must invoke exactly once. When ctx ends first
// it returns the context error and no lock is held.
func (m *ContextShardedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	shard := m.shards[shardFor(key)]
	select {
	case <-shard:
		return func() { shard <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// shardFor maps a key onto the fixed shard space.
func shardFor(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
