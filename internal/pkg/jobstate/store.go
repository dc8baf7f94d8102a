package jobstate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/cache"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/env"
)

const (
	lockKeyPrefix     = "reconcile:active:"
	progressKeyPrefix = "reconcile:job:"

	DefaultLockTTL     = 30 * time.Minute
	DefaultProgressTTL = 2 * time.Hour
	DefaultStaleAfter  = 10 * time.Minute
)

// KV is the narrow cache surface the store needs. Injected so orchestrator
// logic tests run against an in-memory map.
type KV interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	// CompareAndDelete removes the key only while it still holds the
	// expected value, so a reclaim cannot wipe a lock some other caller
	// just planted.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}

// RedisKV adapts the shared cache client to the KV interface.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV() *RedisKV {
	return &RedisKV{client: cache.GetClient()}
}

func (r *RedisKV) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Delete-if-value-matches, atomic on the Redis side.
var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (r *RedisKV) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, r.client, []string{key}, expected).Int()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Store holds the active-job locks and per-job progress snapshots for both
// orchestrators.
type Store struct {
	kv          KV
	lockTTL     time.Duration
	progressTTL time.Duration
	staleAfter  time.Duration
	now         func() time.Time
}

// NewStore creates a job state store over the given KV.
func NewStore(kv KV) *Store {
	return &Store{
		kv:          kv,
		lockTTL:     DefaultLockTTL,
		progressTTL: DefaultProgressTTL,
		staleAfter:  staleAfterFromEnv(),
		now:         time.Now,
	}
}

func staleAfterFromEnv() time.Duration {
	if v, err := strconv.Atoi(env.GetEnv("JOB_STALE_AFTER_MINUTES", "")); err == nil && v > 0 {
		return time.Duration(v) * time.Minute
	}
	return DefaultStaleAfter
}

// LockKey builds the single-flight key for a job kind, optionally scoped to
// one upload.
func LockKey(kind JobKind, uploadID *uint) string {
	if uploadID != nil {
		return fmt.Sprintf("%s%s:upload:%d", lockKeyPrefix, kind, *uploadID)
	}
	return lockKeyPrefix + string(kind)
}

func progressKey(jobID string) string {
	return progressKeyPrefix + jobID
}

// AcquireLock claims the single-flight lock for a scope. Returns won=true
// when this caller now holds it; otherwise the in-flight lock is returned
// so the caller can surface its job id as a duplicate signal. A lock whose
// job finished or went stale is cleared and claimed in the same call.
func (s *Store) AcquireLock(ctx context.Context, lock *ActiveLock) (bool, *ActiveLock, error) {
	key := LockKey(lock.Kind, lock.UploadID)
	payload, err := lock.marshal()
	if err != nil {
		return false, nil, err
	}

	won, err := s.kv.SetNX(ctx, key, payload, s.lockTTL)
	if err != nil {
		return false, nil, err
	}
	if won {
		return true, nil, nil
	}

	existing, raw, found, err := s.readLock(ctx, key)
	if err != nil {
		return false, nil, err
	}
	if found && !s.lockSupersedable(ctx, existing) {
		return false, existing, nil
	}

	// Holder finished or died; reclaim. The delete is guarded on the value
	// this caller judged supersedable, so a concurrent reclaim that already
	// planted a fresh lock survives and wins below.
	if found {
		if _, err := s.kv.CompareAndDelete(ctx, key, raw); err != nil {
			return false, nil, err
		}
	}
	won, err = s.kv.SetNX(ctx, key, payload, s.lockTTL)
	if err != nil {
		return false, nil, err
	}
	if won {
		return true, nil, nil
	}
	existing, _, _, err = s.readLock(ctx, key)
	return false, existing, err
}

// lockSupersedable reports whether an existing lock may be cleared: its job
// reached a terminal status, or it is stale (older than the staleness
// threshold with no recent progress).
func (s *Store) lockSupersedable(ctx context.Context, lock *ActiveLock) bool {
	progress, err := s.GetProgress(ctx, lock.JobID)
	if err != nil {
		return false
	}
	if progress != nil && progress.Terminal() {
		return true
	}
	if s.now().Sub(lock.StartedAt) < s.staleAfter {
		return false
	}
	return progress == nil || s.now().Sub(progress.UpdatedAt) >= s.staleAfter
}

func (s *Store) readLock(ctx context.Context, key string) (*ActiveLock, string, bool, error) {
	val, found, err := s.kv.Get(ctx, key)
	if err != nil || !found {
		return nil, "", false, err
	}
	lock, err := unmarshalLock(val)
	if err != nil {
		// Unreadable lock payloads block nothing.
		log.Warnf("[JobState] Dropping unreadable lock %s: %v", key, err)
		_, _ = s.kv.CompareAndDelete(ctx, key, val)
		return nil, "", false, nil
	}
	return lock, val, true, nil
}

// SaveProgress writes a job's progress snapshot, stamping UpdatedAt.
func (s *Store) SaveProgress(ctx context.Context, progress *JobProgress) error {
	progress.UpdatedAt = s.now()
	payload, err := progress.marshal()
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, progressKey(progress.JobID), payload, s.progressTTL)
}

// GetProgress returns a job's snapshot, or nil when expired or unknown.
func (s *Store) GetProgress(ctx context.Context, jobID string) (*JobProgress, error) {
	val, found, err := s.kv.Get(ctx, progressKey(jobID))
	if err != nil || !found {
		return nil, err
	}
	return unmarshalProgress(val)
}

// ClearLock removes the single-flight lock for a scope.
func (s *Store) ClearLock(ctx context.Context, kind JobKind, uploadID *uint) error {
	return s.kv.Del(ctx, LockKey(kind, uploadID))
}

// StatusSnapshot is what status polls see for one job kind/scope.
type StatusSnapshot struct {
	IsProcessing bool
	JobID        string
	Progress     *JobProgress
}

// Status reports whether a run of this kind/scope is in progress. Reading a
// terminal or stale lock clears it (keeping the progress snapshot), so the
// store self-heals from crashed orchestrators: the clear is idempotent and
// a second poll right after also reports not-processing.
func (s *Store) Status(ctx context.Context, kind JobKind, uploadID *uint) (*StatusSnapshot, error) {
	key := LockKey(kind, uploadID)
	lock, raw, found, err := s.readLock(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return &StatusSnapshot{}, nil
	}

	progress, err := s.GetProgress(ctx, lock.JobID)
	if err != nil {
		return nil, err
	}

	if progress != nil && progress.Terminal() {
		_, _ = s.kv.CompareAndDelete(ctx, key, raw)
		return &StatusSnapshot{JobID: lock.JobID, Progress: progress}, nil
	}

	stale := s.now().Sub(lock.StartedAt) >= s.staleAfter &&
		(progress == nil || s.now().Sub(progress.UpdatedAt) >= s.staleAfter)
	if stale {
		log.Warnf("[JobState] Clearing stale %s lock for job %s (started %s)", kind, lock.JobID, lock.StartedAt.Format(time.RFC3339))
		_, _ = s.kv.CompareAndDelete(ctx, key, raw)
		return &StatusSnapshot{JobID: lock.JobID, Progress: progress}, nil
	}

	return &StatusSnapshot{IsProcessing: true, JobID: lock.JobID, Progress: progress}, nil
}
