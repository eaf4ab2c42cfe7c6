package suppression

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"sigs.k8s.io/yaml"
)

// FileStore keeps records in a YAML file mapping keys to Unix timestamps.
// Save replaces the file atomically.
type FileStore struct {
	records
	path   string
	logger *zap.Logger
}

var _ Store = (*FileStore)(nil)

// OpenFileStore loads the file at path. A missing file is an empty store. An
// unreadable or malformed file is logged and also treated as empty, so that
// every issue is reported rather than silently dropped.
func OpenFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("suppression store path is empty")
	}
	s := &FileStore{
		records: newRecords(),
		path:    path,
		logger:  logger.Named("suppression-store"),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Info("No suppression records yet", zap.String("path", path))
		return s, nil
	case err != nil:
		s.logger.Error("Unable to read suppression records, starting empty", zap.String("path", path), zap.Error(err))
		return s, nil
	}

	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		s.logger.Error("Malformed suppression records, starting empty", zap.String("path", path), zap.Error(err))
		return s, nil
	}
	for key, value := range raw {
		ts, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			s.logger.Warn("Ignoring non-numeric suppression record",
				zap.String("key", key),
				zap.String("value", value),
			)
			continue
		}
		s.values[key] = ts
	}
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Save writes every record to a temporary file next to the target and renames
// it into place. It is a no-op when nothing changed.
func (s *FileStore) Save() error {
	if !s.dirty {
		return nil
	}
	raw := make(map[string]string, len(s.values))
	for k, v := range s.values {
		raw[k] = strconv.FormatInt(v, 10)
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encoding suppression records: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary suppression file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	s.markClean()
	s.logger.Debug("Saved suppression records", zap.String("path", s.path), zap.Int("records", len(s.values)))
	return nil
}

// Close releases nothing; records are only persisted by Save.
func (s *FileStore) Close() error { return nil }
