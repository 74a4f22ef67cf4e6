package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edirooss/procexec/supervisor"
)

var ErrRunNotFound = errors.New("history: run not found")

const (
	runKeyPrefix = "procguardd:run:"
	nextIDKey    = "procguardd:run:next_id"
	runsZSetKey  = "procguardd:runs" // ZSET scored by StartedAt unix nanos

	// maxRetainedRuns bounds the recent-runs index so it can't grow
	// without limit across a long-lived daemon.
	maxRetainedRuns = 5000
)

// Record is a completed run of a supervised unit, persisted for
// post-mortem inspection after the in-memory supervisor.Unit is gone.
type Record struct {
	RunID     int64             `json:"run_id"`
	UnitID    supervisor.UnitID `json:"unit_id"`
	Path      string            `json:"path"`
	Argv      []string          `json:"argv"`
	StartedAt int64             `json:"started_at"` // unix nanos
	ExitedAt  int64             `json:"exited_at"`  // unix nanos
	ExitCode  int               `json:"exit_code"`
	Signaled  bool              `json:"signaled"`
	Signal    int               `json:"signal,omitempty"`
}

// RunRepository provides Redis-backed persistence for run Records,
// grounded on the teacher's internal/redis.ChannelRepository.
type RunRepository struct {
	client *Client
	log    *zap.Logger
}

// NewRunRepository constructs a RunRepository using client.
func NewRunRepository(log *zap.Logger, client *Client) *RunRepository {
	return &RunRepository{
		client: client,
		log:    log.Named("run_repo"),
	}
}

// GenerateID allocates the next unique run ID.
func (r *RunRepository) GenerateID(ctx context.Context) (int64, error) {
	id, err := r.client.Incr(ctx, nextIDKey).Result()
	if err != nil {
		return 0, fmt.Errorf("incr: %w", err)
	}
	return id, nil
}

// Record implements supervisor.Recorder: it converts rec and persists it,
// trimming the recent-runs index to maxRetainedRuns entries.
func (r *RunRepository) Record(ctx context.Context, rec supervisor.RunRecord) error {
	return r.persist(ctx, &Record{
		RunID:     rec.RunID,
		UnitID:    rec.UnitID,
		Path:      rec.Path,
		Argv:      rec.Argv,
		StartedAt: rec.StartedAt.UnixNano(),
		ExitedAt:  rec.ExitedAt.UnixNano(),
		ExitCode:  rec.ExitCode,
		Signaled:  rec.Signaled,
		Signal:    rec.Signal,
	})
}

// persist writes a Record directly, for callers (tests, backfills) that
// already hold one.
func (r *RunRepository) persist(ctx context.Context, rec *Record) error {
	key := runKey(rec.RunID)

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, payload, 0)
	pipe.ZAdd(ctx, runsZSetKey, redis.Z{Score: float64(rec.StartedAt), Member: rec.RunID})
	pipe.ZRemRangeByRank(ctx, runsZSetKey, 0, -maxRetainedRuns-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// GetByID fetches a single run by ID.
func (r *RunRepository) GetByID(ctx context.Context, id int64) (*Record, error) {
	value, err := r.client.Get(ctx, runKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &rec, nil
}

// Recent returns up to n of the most recently started runs, newest
// first.
func (r *RunRepository) Recent(ctx context.Context, n int64) ([]*Record, error) {
	ids, err := r.client.ZRevRange(ctx, runsZSetKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = runKeyStr(id)
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}

	out := make([]*Record, 0, len(vals))
	for i, v := range vals {
		if v == nil {
			continue // evicted between ZSET read and MGET, skip
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("key %s: unexpected type (got %T, want string)", keys[i], v)
		}
		var rec Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("key %s: decode: %w", keys[i], err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

func runKey(id int64) string {
	return runKeyStr(strconv.FormatInt(id, 10))
}

func runKeyStr(id string) string {
	return runKeyPrefix + id
}
