package stores

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"simple-kv/pkg/config"
	"simple-kv/pkg/values"
)

// PebbleStore persists keys in a pebble database.
type PebbleStore struct {
	db        *pebble.DB
	path      string
	writeOpts *pebble.WriteOptions
}

// OpenPebbleStore opens (or creates) the database at path. A nil fs means the
// host filesystem.
func OpenPebbleStore(path string, fs vfs.FS) (*PebbleStore, error) {
	opts := &pebble.Options{}
	if fs != nil {
		opts.FS = fs
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble store: path=%s", path)
	}

	writeOpts := pebble.NoSync
	if config.PebbleSync {
		writeOpts = pebble.Sync
	}
	return &PebbleStore{
		db:        db,
		path:      path,
		writeOpts: writeOpts,
	}, nil
}

func (s *PebbleStore) Has(key string) (bool, error) {
	val, err := s.Get(key)
	if err != nil {
		return false, err
	}
	return !val.Absent, nil
}

func (s *PebbleStore) Get(key string) (values.Value, error) {
	data, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return values.Absent, nil
	}
	if err != nil {
		return values.Absent, errors.Wrapf(err, "pebble get: key=%s", key)
	}
	defer closer.Close()

	// data is only valid until closer is closed
	return values.Of(string(data)), nil
}

func (s *PebbleStore) Put(key string, val string) error {
	if err := s.db.Set([]byte(key), []byte(val), s.writeOpts); err != nil {
		return errors.Wrapf(err, "pebble put: key=%s", key)
	}
	return nil
}

func (s *PebbleStore) Delete(key string) error {
	if err := s.db.Delete([]byte(key), s.writeOpts); err != nil {
		return errors.Wrapf(err, "pebble delete: key=%s", key)
	}
	return nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
