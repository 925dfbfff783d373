package config

import "time"

const (
	// LockTableShards must be a power of two.
	LockTableShards = 256
	// MaxPayloadLength bounds the payload a client may declare in a header.
	MaxPayloadLength = 64 << 20
)

var (
	// DetectInterval is how often the engine breaks deadlocks.
	DetectInterval = 50 * time.Millisecond
	// PollInterval is how often a blocked request re-checks its lock.
	PollInterval = time.Millisecond
	// PebbleSync makes every pebble write durable before returning.
	PebbleSync = true
)

type StoreKind string

const (
	MemoryStore StoreKind = "memory"
	PebbleStore StoreKind = "pebble"
)
