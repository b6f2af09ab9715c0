package state

import (
	"fmt"
	"testing"
)

// TestEnsureBuckets tests that standard buckets can be ensured repeatedly
func TestEnsureBuckets(t *testing.T) {
	store := newTestStore(t, nil)

	if err := EnsureBuckets(store); err != nil {
		t.Fatalf("EnsureBuckets on an initialized store failed: %v", err)
	}
	buckets, _ := store.ListBuckets()
	if len(buckets) != len(StandardBuckets) {
		t.Errorf("expected %d buckets, got %v", len(StandardBuckets), buckets)
	}
}

// TestRecent tests ordered retrieval of the newest entries
func TestRecent(t *testing.T) {
	store := newTestStore(t, nil)

	type item struct {
		N int `json:"n"`
	}
	for i := 1; i <= 5; i++ {
		if err := store.SetJSON(BucketHistory, fmt.Sprintf("%020d", i), item{N: i}); err != nil {
			t.Fatalf("set %d failed: %v", i, err)
		}
	}
	store.Set(BucketHistory, fmt.Sprintf("%020d", 6), []byte("not json"))

	got, err := Recent[item](store, BucketHistory, 3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	// The undecodable newest entry counts toward n but is skipped.
	if len(got) != 2 || got[0].N != 4 || got[1].N != 5 {
		t.Errorf("unexpected recent items %+v", got)
	}

	all, _ := Recent[item](store, BucketHistory, 0)
	if len(all) != 5 || all[0].N != 1 {
		t.Errorf("expected all 5 decodable items oldest first, got %+v", all)
	}
}
