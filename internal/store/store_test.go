package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/UniQw/genflow-go/internal/keys"
	mrd "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jsonCodec struct{}

func (jsonCodec) Encode(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }

type doc struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
	Note  string `json:"note,omitempty"`
}

func newMiniClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	s := mrd.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	cleanup := func() {
		_ = rdb.Close()
		s.Close()
	}
	return rdb, cleanup
}

func TestStore_InsertGetDuplicate(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	ctx := context.Background()
	s := New[doc](rdb, "doc", jsonCodec{})

	got, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, s.Insert(ctx, "a", 1, &doc{ID: "a", Count: 1}))
	require.ErrorIs(t, s.Insert(ctx, "a", 2, &doc{ID: "a"}), ErrExists)

	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 1, got.Count)

	n, _ := rdb.ZCard(ctx, keys.Index("doc")).Result()
	require.Equal(t, int64(1), n)
}

func TestStore_Update_MissingIsNoop(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	ctx := context.Background()
	s := New[doc](rdb, "doc", jsonCodec{})

	called := false
	ok, err := s.Update(ctx, "ghost", func(d *doc) { called = true })
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, called)

	exists, _ := rdb.Exists(ctx, keys.Doc("doc", "ghost")).Result()
	require.Zero(t, exists, "update must not resurrect a missing document")
}

func TestStore_Update_ConcurrentWritersDoNotLoseIncrements(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	ctx := context.Background()
	s := New[doc](rdb, "doc", jsonCodec{})
	require.NoError(t, s.Insert(ctx, "c", 1, &doc{ID: "c"}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "c", func(d *doc) { d.Count++ })
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, 8, got.Count)
}

func TestStore_Replace(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	ctx := context.Background()
	s := New[doc](rdb, "doc", jsonCodec{})
	require.NoError(t, s.Insert(ctx, "tmp", 5, &doc{ID: "tmp"}))

	ok, err := s.Replace(ctx, "tmp", "final", 5, &doc{ID: "final", Note: "real"})
	require.NoError(t, err)
	require.True(t, ok)

	old, _ := s.Get(ctx, "tmp")
	require.Nil(t, old)
	got, _ := s.Get(ctx, "final")
	require.Equal(t, "real", got.Note)

	ids, _ := rdb.ZRange(ctx, keys.Index("doc"), 0, -1).Result()
	require.Equal(t, []string{"final"}, ids)

	// replacing again: tmp is gone so nothing happens
	ok, err = s.Replace(ctx, "tmp", "other", 5, &doc{ID: "other"})
	require.NoError(t, err)
	require.False(t, ok)
	other, _ := s.Get(ctx, "other")
	require.Nil(t, other)
}

func TestStore_Replace_TargetTaken(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	ctx := context.Background()
	s := New[doc](rdb, "doc", jsonCodec{})
	require.NoError(t, s.Insert(ctx, "tmp", 1, &doc{ID: "tmp"}))
	require.NoError(t, s.Insert(ctx, "final", 2, &doc{ID: "final"}))

	_, err := s.Replace(ctx, "tmp", "final", 1, &doc{ID: "final"})
	require.ErrorIs(t, err, ErrExists)
	still, _ := s.Get(ctx, "tmp")
	require.NotNil(t, still)
}

func TestStore_DeleteAndList(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	ctx := context.Background()
	s := New[doc](rdb, "doc", jsonCodec{})

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)

	require.NoError(t, s.Insert(ctx, "b", 20, &doc{ID: "b"}))
	require.NoError(t, s.Insert(ctx, "a", 10, &doc{ID: "a"}))
	require.NoError(t, s.Insert(ctx, "c", 30, &doc{ID: "c"}))

	list, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "a", list[0].ID)
	require.Equal(t, "c", list[2].ID)

	ok, err := s.Delete(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Delete(ctx, "b")
	require.NoError(t, err)
	require.False(t, ok)

	// dangling index entry is skipped
	require.NoError(t, rdb.Del(ctx, keys.Doc("doc", "c")).Err())
	list, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "a", list[0].ID)
}
