package genflow

import (
	"context"
	"errors"
	"time"

	"github.com/UniQw/genflow-go/internal/keys"
	"github.com/UniQw/genflow-go/internal/store"
	"github.com/redis/go-redis/v9"
)

// Registry is the durable store of task records. Every write is scoped to one id.
type Registry interface {
	// Get returns ErrTaskNotFound when id is absent.
	Get(ctx context.Context, id string) (*Task, error)
	// Insert fails with ErrDuplicateTask if id is taken.
	Insert(ctx context.Context, t *Task) error
	// Upsert re-reads the record, applies mutate and writes it back. It reports false,
	// without error, when the record no longer exists.
	Upsert(ctx context.Context, id string, mutate func(*Task)) (bool, error)
	// Replace removes oldID and inserts t under t.ID atomically. It reports false when
	// oldID no longer exists, in which case nothing is written.
	Replace(ctx context.Context, oldID string, t *Task) (bool, error)
	// Delete reports whether a record was removed.
	Delete(ctx context.Context, id string) (bool, error)
	// List returns every record in creation order.
	List(ctx context.Context) ([]*Task, error)
}

// RedisRegistry is a Registry backed by Redis.
type RedisRegistry struct {
	docs *store.Store[Task]
	now  func() time.Time
}

// NewRegistry creates a task registry on rdb.
func NewRegistry(rdb redis.UniversalClient, opts ...Option) *RedisRegistry {
	o := newOptions(opts)
	return &RedisRegistry{docs: store.New[Task](rdb, keys.KindTask, o.encoder), now: time.Now}
}

func (r *RedisRegistry) Get(ctx context.Context, id string) (*Task, error) {
	t, err := r.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTaskNotFound
	}
	return t, nil
}

func (r *RedisRegistry) Insert(ctx context.Context, t *Task) error {
	if t.CreatedAt == 0 {
		t.CreatedAt = r.now().UnixMilli()
	}
	if t.UpdatedAt == 0 {
		t.UpdatedAt = t.CreatedAt
	}
	return mapStoreErr(r.docs.Insert(ctx, t.ID, t.CreatedAt, t))
}

func (r *RedisRegistry) Upsert(ctx context.Context, id string, mutate func(*Task)) (bool, error) {
	return r.docs.Update(ctx, id, func(t *Task) {
		mutate(t)
		t.ID = id
		t.UpdatedAt = r.now().UnixMilli()
	})
}

func (r *RedisRegistry) Replace(ctx context.Context, oldID string, t *Task) (bool, error) {
	if t.CreatedAt == 0 {
		t.CreatedAt = r.now().UnixMilli()
	}
	t.UpdatedAt = r.now().UnixMilli()
	ok, err := r.docs.Replace(ctx, oldID, t.ID, t.CreatedAt, t)
	return ok, mapStoreErr(err)
}

func (r *RedisRegistry) Delete(ctx context.Context, id string) (bool, error) {
	return r.docs.Delete(ctx, id)
}

func (r *RedisRegistry) List(ctx context.Context) ([]*Task, error) {
	return r.docs.List(ctx)
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrExists) {
		return ErrDuplicateTask
	}
	return err
}
