package suppression

import "sort"

// Store persists the last time a notification went out for each suppression
// key, as Unix seconds. It is read once at the start of a cycle and saved once
// at the end; implementations need not be safe for concurrent use.
type Store interface {
	// Get returns the recorded timestamp. A missing or unusable record
	// reports false.
	Get(key string) (int64, bool)
	Set(key string, unix int64)
	Delete(key string)
	// Keys returns every recorded key in ascending order.
	Keys() []string
	// Save makes pending changes durable.
	Save() error
	Close() error
}

// records is the in-memory table both stores work from.
type records struct {
	values  map[string]int64
	deleted map[string]struct{}
	dirty   bool
}

func newRecords() records {
	return records{values: map[string]int64{}, deleted: map[string]struct{}{}}
}

func (r *records) Get(key string) (int64, bool) {
	v, ok := r.values[key]
	return v, ok
}

func (r *records) Set(key string, unix int64) {
	r.values[key] = unix
	delete(r.deleted, key)
	r.dirty = true
}

func (r *records) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	r.deleted[key] = struct{}{}
	r.dirty = true
}

func (r *records) Keys() []string {
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *records) markClean() {
	r.deleted = map[string]struct{}{}
	r.dirty = false
}
