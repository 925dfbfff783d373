package stores

import (
	"github.com/cockroachdb/errors"

	"simple-kv/pkg/config"
	"simple-kv/pkg/modules"
)

var (
	_ modules.Store = (*MemoryStore)(nil)
	_ modules.Store = (*PebbleStore)(nil)
)

func Open(kind config.StoreKind, dir string) (modules.Store, error) {
	switch kind {
	case config.MemoryStore, "":
		return NewMemoryStore(), nil
	case config.PebbleStore:
		if dir == "" {
			return nil, errors.New("pebble store needs a data directory")
		}
		return OpenPebbleStore(dir, nil)
	default:
		return nil, errors.Newf("unknown store: kind=%s", kind)
	}
}
