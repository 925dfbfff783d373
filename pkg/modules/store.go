package modules

import "simple-kv/pkg/values"

// Store is the key-value storage engine the lock core runs on top of.
type Store interface {
	Has(key string) (bool, error)
	// Get returns values.Absent when key does not exist.
	Get(key string) (values.Value, error)
	Put(key string, val string) error
	Delete(key string) error
	Close() error
}
