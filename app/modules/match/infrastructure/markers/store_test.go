package markers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	matchtypes "github.com/north-end-collective/matchday-bot/app/modules/match/domain/types"
	"github.com/north-end-collective/matchday-bot/internal/observability"
)

// fakeBucket is an in-memory Bucket.
type fakeBucket struct {
	data map[string][]byte

	putErr    error
	getErr    error
	deleteErr error
	keysErr   error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{data: make(map[string][]byte)}
}

func (b *fakeBucket) Put(_ context.Context, key string, value []byte) (uint64, error) {
	if b.putErr != nil {
		return 0, b.putErr
	}
	b.data[key] = value
	return 1, nil
}

func (b *fakeBucket) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	value, ok := b.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return fakeEntry{key: key, value: value}, nil
}

func (b *fakeBucket) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	if _, ok := b.data[key]; !ok {
		return jetstream.ErrKeyNotFound
	}
	delete(b.data, key)
	return nil
}

func (b *fakeBucket) Keys(_ context.Context, _ ...jetstream.WatchOpt) ([]string, error) {
	if b.keysErr != nil {
		return nil, b.keysErr
	}
	if len(b.data) == 0 {
		return nil, jetstream.ErrNoKeysFound
	}
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	return keys, nil
}

type fakeEntry struct {
	key   string
	value []byte
}

func (e fakeEntry) Bucket() string                  { return BucketName }
func (e fakeEntry) Key() string                     { return e.key }
func (e fakeEntry) Value() []byte                   { return e.value }
func (e fakeEntry) Revision() uint64                { return 1 }
func (e fakeEntry) Created() time.Time              { return time.Time{} }
func (e fakeEntry) Delta() uint64                   { return 0 }
func (e fakeEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }

func newTestStore(bucket Bucket) *Store {
	return NewStore(bucket, observability.NoOpLogger, observability.NoOpMetrics{})
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(newFakeBucket())
	ctx := context.Background()

	eta := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	if err := store.Set(ctx, 42, matchtypes.TaskKindThreadCreation, matchtypes.Marker{TaskID: "abc", ETA: eta}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	marker, err := store.Get(ctx, 42, matchtypes.TaskKindThreadCreation)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if marker.TaskID != "abc" {
		t.Errorf("Get() TaskID = %q, want %q", marker.TaskID, "abc")
	}
	if !marker.ETA.Equal(eta) {
		t.Errorf("Get() ETA = %v, want %v", marker.ETA, eta)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(newFakeBucket())

	_, err := store.Get(context.Background(), 42, matchtypes.TaskKindThreadCreation)
	if !errors.Is(err, ErrNoMarker) {
		t.Errorf("Get() error = %v, want ErrNoMarker", err)
	}
}

func TestStoreGetLegacyRawValue(t *testing.T) {
	bucket := newFakeBucket()
	bucket.data[Key(7, matchtypes.TaskKindLiveReportingStart)] = []byte("legacy-task-id\n")
	store := newTestStore(bucket)

	marker, err := store.Get(context.Background(), 7, matchtypes.TaskKindLiveReportingStart)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if marker.TaskID != "legacy-task-id" {
		t.Errorf("Get() TaskID = %q, want %q", marker.TaskID, "legacy-task-id")
	}
	if !marker.ETA.IsZero() {
		t.Errorf("Get() ETA = %v, want zero", marker.ETA)
	}
}

func TestStoreDeleteIdempotent(t *testing.T) {
	store := newTestStore(newFakeBucket())
	ctx := context.Background()

	if err := store.Set(ctx, 42, matchtypes.TaskKindThreadCreation, matchtypes.Marker{TaskID: "abc"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Delete(ctx, 42, matchtypes.TaskKindThreadCreation); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	// Second delete of the same key must not fail.
	if err := store.Delete(ctx, 42, matchtypes.TaskKindThreadCreation); err != nil {
		t.Errorf("Delete() second call error = %v", err)
	}
}

func TestStoreList(t *testing.T) {
	store := newTestStore(newFakeBucket())
	ctx := context.Background()

	markers := map[int64]map[matchtypes.TaskKind]string{
		1: {matchtypes.TaskKindThreadCreation: "10", matchtypes.TaskKindLiveReportingStart: "11"},
		2: {matchtypes.TaskKindThreadCreation: "20"},
	}
	for matchID, byKind := range markers {
		for kind, taskID := range byKind {
			if err := store.Set(ctx, matchID, kind, matchtypes.Marker{TaskID: taskID}); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
		}
	}

	got, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List() returned %d matches, want 2", len(got))
	}
	if got[1][matchtypes.TaskKindLiveReportingStart].TaskID != "11" {
		t.Errorf("List() match 1 reporting TaskID = %q, want %q", got[1][matchtypes.TaskKindLiveReportingStart].TaskID, "11")
	}
	if got[2][matchtypes.TaskKindThreadCreation].TaskID != "20" {
		t.Errorf("List() match 2 thread TaskID = %q, want %q", got[2][matchtypes.TaskKindThreadCreation].TaskID, "20")
	}
}

func TestStoreListEmpty(t *testing.T) {
	store := newTestStore(newFakeBucket())

	got, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("List() returned %d matches, want 0", len(got))
	}
}

func TestKeyLayout(t *testing.T) {
	got := Key(123, matchtypes.TaskKindLiveReportingStart)
	want := "match_scheduler.123.reporting"
	if got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}

	matchID, kind, ok := parseKey(want)
	if !ok || matchID != 123 || kind != matchtypes.TaskKindLiveReportingStart {
		t.Errorf("parseKey(%q) = (%d, %s, %v)", want, matchID, kind, ok)
	}
}
