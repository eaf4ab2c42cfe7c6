package suppression

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// PebbleStore keeps records in a Pebble database. The table is small, so it
// is read into memory on open and changes are committed as one synced batch
// on Save.
type PebbleStore struct {
	records
	db     *pebble.DB
	logger *zap.Logger
}

var _ Store = (*PebbleStore)(nil)

// OpenPebbleStore opens (or creates) the database in dir. Values that do not
// parse as integers are logged and ignored.
func OpenPebbleStore(dir string, logger *zap.Logger) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening suppression database %s: %w", dir, err)
	}
	s := &PebbleStore{
		records: newRecords(),
		db:      db,
		logger:  logger.Named("suppression-store"),
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PebbleStore) load() error {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return fmt.Errorf("iterating suppression records: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key())
		value, err := iter.ValueAndErr()
		if err != nil {
			return fmt.Errorf("reading suppression record %q: %w", key, err)
		}
		ts, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			s.logger.Warn("Ignoring non-numeric suppression record",
				zap.String("key", key),
				zap.ByteString("value", value),
			)
			continue
		}
		s.values[key] = ts
	}
	return iter.Error()
}

// Save commits pending sets and deletes in a single synced batch.
func (s *PebbleStore) Save() error {
	if !s.dirty {
		return nil
	}
	batch := s.db.NewBatch()
	defer batch.Close()

	for key, ts := range s.values {
		if err := batch.Set([]byte(key), []byte(strconv.FormatInt(ts, 10)), nil); err != nil {
			return fmt.Errorf("staging suppression record %q: %w", key, err)
		}
	}
	for key := range s.deleted {
		if err := batch.Delete([]byte(key), nil); err != nil {
			return fmt.Errorf("staging deletion of %q: %w", key, err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("committing suppression records: %w", err)
	}
	s.markClean()
	return nil
}

// Close closes the database. Unsaved changes are discarded.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}
