package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Standard bucket names
const (
	BucketExtender = "extender" // Current run record, for crash cleanup
	BucketHistory  = "history"  // Lifecycle transitions, TTL-bounded
	BucketClients  = "clients"  // Last seen hotspot clients by MAC
)

// StandardBuckets lists the buckets created with every store.
var StandardBuckets = []string{BucketExtender, BucketHistory, BucketClients}

// EnsureBuckets creates the standard buckets, ignoring ones that exist.
func EnsureBuckets(s Store) error {
	for _, name := range StandardBuckets {
		if err := s.CreateBucket(name); err != nil && !errors.Is(err, ErrBucketExists) {
			return fmt.Errorf("create bucket %s: %w", name, err)
		}
	}
	return nil
}

// Recent decodes the newest n values of bucket into a slice, newest last.
// Keys must sort chronologically. n <= 0 returns every entry.
func Recent[T any](s Store, bucket string, n int) ([]T, error) {
	data, err := s.List(bucket)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if n > 0 && len(keys) > n {
		keys = keys[len(keys)-n:]
	}

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		var v T
		if err := json.Unmarshal(data[k], &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
