// Package store keeps schema-free JSON documents in Redis, one key per document plus a
// creation-ordered index. Every write to an existing document is an optimistic
// read-mutate-write guarded by WATCH on that document's key only.
package store

import (
	"context"
	"errors"

	"github.com/UniQw/genflow-go/internal/keys"
	"github.com/redis/go-redis/v9"
)

// ErrExists is returned by Insert/Replace when the target id is already taken.
var ErrExists = errors.New("store: document exists")

// ErrConflict is returned when a document kept changing under WATCH for every attempt.
var ErrConflict = errors.New("store: too many concurrent writers")

// Codec serializes documents.
type Codec interface {
	Encode(any) ([]byte, error)
	Decode([]byte, any) error
}

// maxAttempts bounds optimistic retries on WATCH conflicts.
const maxAttempts = 16

// Store is a typed view over one document kind.
type Store[T any] struct {
	rdb   redis.UniversalClient
	k     keys.Kind
	codec Codec
}

// New creates a store for the given document kind.
func New[T any](rdb redis.UniversalClient, kind string, codec Codec) *Store[T] {
	return &Store[T]{rdb: rdb, k: keys.For(kind), codec: codec}
}

// Get returns the document or (nil, nil) when it does not exist.
func (s *Store[T]) Get(ctx context.Context, id string) (*T, error) {
	data, err := s.rdb.Get(ctx, s.k.Doc(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := s.codec.Decode(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Insert stores a new document. It fails with ErrExists if id is taken.
func (s *Store[T]) Insert(ctx context.Context, id string, createdMs int64, v *T) error {
	raw, err := s.codec.Encode(v)
	if err != nil {
		return err
	}
	key := s.k.Doc(id)
	return s.retry(ctx, func() error {
		return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return ErrExists
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, key, raw, 0)
				p.ZAdd(ctx, s.k.Index, redis.Z{Score: float64(createdMs), Member: id})
				return nil
			})
			return err
		}, key)
	})
}

// Update re-reads the current document, applies mutate and writes it back if nobody
// else wrote the key in between. A missing document is a silent no-op reported as false.
func (s *Store[T]) Update(ctx context.Context, id string, mutate func(*T)) (bool, error) {
	key := s.k.Doc(id)
	found := false
	err := s.retry(ctx, func() error {
		found = false
		return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return nil
			}
			if err != nil {
				return err
			}
			var v T
			if err := s.codec.Decode(data, &v); err != nil {
				return err
			}
			mutate(&v)
			raw, err := s.codec.Encode(&v)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, key, raw, 0)
				return nil
			})
			if err == nil {
				found = true
			}
			return err
		}, key)
	})
	return found, err
}

// Replace deletes oldID and inserts v under newID in one transaction.
// It reports false without writing anything when oldID no longer exists.
func (s *Store[T]) Replace(ctx context.Context, oldID, newID string, createdMs int64, v *T) (bool, error) {
	raw, err := s.codec.Encode(v)
	if err != nil {
		return false, err
	}
	oldKey, newKey := s.k.Doc(oldID), s.k.Doc(newID)
	replaced := false
	err = s.retry(ctx, func() error {
		replaced = false
		return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, oldKey).Result()
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			if oldKey != newKey {
				n, err = tx.Exists(ctx, newKey).Result()
				if err != nil {
					return err
				}
				if n > 0 {
					return ErrExists
				}
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Del(ctx, oldKey)
				p.ZRem(ctx, s.k.Index, oldID)
				p.Set(ctx, newKey, raw, 0)
				p.ZAdd(ctx, s.k.Index, redis.Z{Score: float64(createdMs), Member: newID})
				return nil
			})
			if err == nil {
				replaced = true
			}
			return err
		}, oldKey, newKey)
	})
	return replaced, err
}

// Delete removes the document and its index entry. It reports whether the document existed.
func (s *Store[T]) Delete(ctx context.Context, id string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, s.k.Doc(id))
		p.ZRem(ctx, s.k.Index, id)
		return nil
	})
	if err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}

// List returns every document in creation order. Index entries whose document is gone
// or cannot be decoded are skipped.
func (s *Store[T]) List(ctx context.Context) ([]*T, error) {
	ids, err := s.rdb.ZRange(ctx, s.k.Index, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	docKeys := make([]string, len(ids))
	for i, id := range ids {
		docKeys[i] = s.k.Doc(id)
	}
	vals, err := s.rdb.MGet(ctx, docKeys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(vals))
	for _, raw := range vals {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var v T
		if err := s.codec.Decode([]byte(str), &v); err == nil {
			out = append(out, &v)
		}
	}
	return out, nil
}

func (s *Store[T]) retry(ctx context.Context, fn func() error) error {
	for i := 0; i < maxAttempts; i++ {
		err := fn()
		if errors.Is(err, redis.TxFailedErr) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		return err
	}
	return ErrConflict
}
