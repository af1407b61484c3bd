package locking

import "sync/atomic"

// Counter is a wait-free atomic int32 used for ID generation and
// statistics. The zero value is ready to use.
type Counter struct {
	v atomic.Int32
}

// Increment adds one and returns the new value.
func (c *Counter) Increment() int32 { return c.v.Add(1) }

// Decrement subtracts one and returns the new value.
func (c *Counter) Decrement() int32 { return c.v.Add(-1) }

// Add adds delta and returns the new value.
func (c *Counter) Add(delta int32) int32 { return c.v.Add(delta) }

// Load returns the current value.
func (c *Counter) Load() int32 { return c.v.Load() }

// Store overwrites the current value.
func (c *Counter) Store(v int32) { c.v.Store(v) }

// CompareExchange swaps old for new atomically, reporting success.
func (c *Counter) CompareExchange(old, new int32) bool { return c.v.CompareAndSwap(old, new) }

// Counter64 is the 64-bit variant used for sequence numbers that may
// outlive int32 range.
type Counter64 struct {
	v atomic.Int64
}

// Increment adds one and returns the new value.
func (c *Counter64) Increment() int64 { return c.v.Add(1) }

// Load returns the current value.
func (c *Counter64) Load() int64 { return c.v.Load() }
