package markers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	matchtypes "github.com/north-end-collective/matchday-bot/app/modules/match/domain/types"
	"github.com/north-end-collective/matchday-bot/internal/observability"
	"github.com/north-end-collective/matchday-bot/internal/observability/attr"
)

const (
	// BucketName holds all schedule markers. Entries expire via the bucket
	// TTL; the presence of a key means a queue job is believed outstanding.
	BucketName = "match_scheduler"

	// KeyPrefix matches the legacy Redis layout (match_scheduler:<id>:<kind>)
	// with '.' separators, since KV keys cannot contain ':'.
	KeyPrefix = "match_scheduler"

	// MarkerTTL is how long a marker survives without cleanup.
	MarkerTTL = 48 * time.Hour
)

// ErrNoMarker indicates no marker exists for the match and kind.
var ErrNoMarker = errors.New("no marker for match and kind")

// Bucket is the subset of jetstream.KeyValue the store uses.
type Bucket interface {
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
	Keys(ctx context.Context, opts ...jetstream.WatchOpt) ([]string, error)
}

// Store persists schedule markers in a TTL'd KV bucket.
type Store struct {
	kv      Bucket
	logger  *slog.Logger
	metrics observability.MatchMetrics
}

// NewBucket creates (or updates) the marker bucket with the standard TTL.
func NewBucket(ctx context.Context, js jetstream.JetStream) (jetstream.KeyValue, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      BucketName,
		Description: "outstanding match automation jobs",
		TTL:         MarkerTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create marker bucket: %w", err)
	}
	return kv, nil
}

// NewStore wraps a KV bucket as a marker store.
func NewStore(kv Bucket, logger *slog.Logger, metrics observability.MatchMetrics) *Store {
	return &Store{kv: kv, logger: logger, metrics: metrics}
}

// Key builds the marker key for a match and task kind.
func Key(matchID int64, kind matchtypes.TaskKind) string {
	return fmt.Sprintf("%s.%d.%s", KeyPrefix, matchID, kind.MarkerSegment())
}

// Set writes a marker, overwriting any existing one for the same key.
func (s *Store) Set(ctx context.Context, matchID int64, kind matchtypes.TaskKind, marker matchtypes.Marker) error {
	data, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("failed to marshal marker: %w", err)
	}
	if _, err := s.kv.Put(ctx, Key(matchID, kind), data); err != nil {
		s.metrics.RecordMarkerOperation(ctx, "set", false)
		return fmt.Errorf("failed to store marker: %w", err)
	}
	s.metrics.RecordMarkerOperation(ctx, "set", true)
	s.logger.DebugContext(ctx, "Marker stored",
		attr.Int64("match_id", matchID),
		attr.String("kind", string(kind)),
		attr.String("task_id", marker.TaskID))
	return nil
}

// Get reads and normalizes a marker. Returns ErrNoMarker when absent.
func (s *Store) Get(ctx context.Context, matchID int64, kind matchtypes.TaskKind) (*matchtypes.Marker, error) {
	entry, err := s.kv.Get(ctx, Key(matchID, kind))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return nil, ErrNoMarker
		}
		s.metrics.RecordMarkerOperation(ctx, "get", false)
		return nil, fmt.Errorf("failed to read marker: %w", err)
	}
	s.metrics.RecordMarkerOperation(ctx, "get", true)
	marker := decodeMarker(entry.Value())
	return &marker, nil
}

// Delete removes a marker. Deleting a missing marker is not an error.
func (s *Store) Delete(ctx context.Context, matchID int64, kind matchtypes.TaskKind) error {
	err := s.kv.Delete(ctx, Key(matchID, kind))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) && !errors.Is(err, jetstream.ErrKeyDeleted) {
		s.metrics.RecordMarkerOperation(ctx, "delete", false)
		return fmt.Errorf("failed to delete marker: %w", err)
	}
	s.metrics.RecordMarkerOperation(ctx, "delete", true)
	return nil
}

// List returns every marker in the bucket, grouped by match.
func (s *Store) List(ctx context.Context) (map[int64]map[matchtypes.TaskKind]matchtypes.Marker, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return map[int64]map[matchtypes.TaskKind]matchtypes.Marker{}, nil
		}
		return nil, fmt.Errorf("failed to list markers: %w", err)
	}

	out := make(map[int64]map[matchtypes.TaskKind]matchtypes.Marker)
	for _, k := range keys {
		matchID, kind, ok := parseKey(k)
		if !ok {
			s.logger.WarnContext(ctx, "Unexpected marker key format", attr.String("key", k))
			continue
		}
		entry, err := s.kv.Get(ctx, k)
		if err != nil {
			// Expired or deleted between Keys and Get; skip.
			continue
		}
		if out[matchID] == nil {
			out[matchID] = make(map[matchtypes.TaskKind]matchtypes.Marker)
		}
		out[matchID][kind] = decodeMarker(entry.Value())
	}
	return out, nil
}

// decodeMarker normalizes the two historical value formats: the JSON envelope
// {"task_id": ..., "eta": ...} and a bare task-id string.
func decodeMarker(value []byte) matchtypes.Marker {
	var m matchtypes.Marker
	if err := json.Unmarshal(value, &m); err == nil && m.TaskID != "" {
		return m
	}
	return matchtypes.Marker{TaskID: strings.TrimSpace(string(value))}
}

func parseKey(key string) (matchID int64, kind matchtypes.TaskKind, ok bool) {
	parts := strings.Split(key, ".")
	if len(parts) != 3 || parts[0] != KeyPrefix {
		return 0, "", false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	k, ok := matchtypes.KindFromMarkerSegment(parts[2])
	if !ok {
		return 0, "", false
	}
	return id, k, true
}
