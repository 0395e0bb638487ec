package genflow

import (
	"context"
	"time"

	"github.com/UniQw/genflow-go/internal/keys"
	"github.com/UniQw/genflow-go/internal/store"
	"github.com/redis/go-redis/v9"
)

// Product is a pipeline record: a product image turned into a video in three stages.
// Artifacts of finished stages are kept even when a later stage fails.
type Product struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MainImageURL string `json:"mainImageUrl"`
	// DerivedImageURL is the output of stage 1.
	DerivedImageURL string `json:"derivedImageUrl,omitempty"`
	// Prompt is the output of stage 2, replaced by the enhanced prompt on completion.
	Prompt      string      `json:"prompt,omitempty"`
	Model       Model       `json:"model,omitempty"`
	Duration    int         `json:"duration,omitempty"`
	Orientation Orientation `json:"orientation,omitempty"`
	Size        Size        `json:"size,omitempty"`
	TaskID      string      `json:"taskId,omitempty"`

	Status    Status `json:"status"`
	ResultURL string `json:"resultUrl,omitempty"`
	Error     string `json:"error,omitempty"`
	// FailedStage is the stage label of the last failure.
	FailedStage string `json:"failedStage,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt,omitempty"`
}

// ProductStore persists pipeline records in Redis.
type ProductStore struct {
	docs *store.Store[Product]
	now  func() time.Time
}

// NewProductStore creates a product store on rdb.
func NewProductStore(rdb redis.UniversalClient, opts ...Option) *ProductStore {
	o := newOptions(opts)
	return &ProductStore{docs: store.New[Product](rdb, keys.KindProduct, o.encoder), now: time.Now}
}

// Get returns ErrProductNotFound when id is absent.
func (s *ProductStore) Get(ctx context.Context, id string) (*Product, error) {
	p, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProductNotFound
	}
	return p, nil
}

// Insert stores a new product.
func (s *ProductStore) Insert(ctx context.Context, p *Product) error {
	if p.CreatedAt == 0 {
		p.CreatedAt = s.now().UnixMilli()
	}
	if p.UpdatedAt == 0 {
		p.UpdatedAt = p.CreatedAt
	}
	return mapStoreErr(s.docs.Insert(ctx, p.ID, p.CreatedAt, p))
}

// Update applies mutate to the current record. It reports false when the record is gone.
func (s *ProductStore) Update(ctx context.Context, id string, mutate func(*Product)) (bool, error) {
	return s.docs.Update(ctx, id, func(p *Product) {
		mutate(p)
		p.ID = id
		p.UpdatedAt = s.now().UnixMilli()
	})
}

// Delete reports whether a record was removed.
func (s *ProductStore) Delete(ctx context.Context, id string) (bool, error) {
	return s.docs.Delete(ctx, id)
}

// List returns every product in creation order.
func (s *ProductStore) List(ctx context.Context) ([]*Product, error) {
	return s.docs.List(ctx)
}
