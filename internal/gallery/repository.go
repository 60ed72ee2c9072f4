package gallery

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository persists gallery items. FindItem returns soft-deleted items too.
type Repository interface {
	FindItem(ctx context.Context, id int64) (Item, error)
	InsertItem(ctx context.Context, item *Item) error
	SaveItem(ctx context.Context, id int64, mutate func(*Item) error) (Item, error)
	SoftDeleteItem(ctx context.Context, id int64) (bool, error)
	// ListItems returns up to limit live items, newest first.
	ListItems(ctx context.Context, limit int) ([]Item, error)
}

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu    sync.Mutex
	items map[int64]Item
	next  int64
	now   func() time.Time
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[int64]Item), now: time.Now}
}

func cloneItem(item Item) Item {
	item.Images = append([]string(nil), item.Images...)
	return item
}

func (m *MemoryRepository) FindItem(_ context.Context, id int64) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return cloneItem(item), nil
}

func (m *MemoryRepository) InsertItem(_ context.Context, item *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	now := m.now()
	item.ID = m.next
	item.CreatedAt, item.UpdatedAt = now, now
	m.items[item.ID] = cloneItem(*item)
	return nil
}

func (m *MemoryRepository) SaveItem(_ context.Context, id int64, mutate func(*Item) error) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	item = cloneItem(item)
	if err := mutate(&item); err != nil {
		return Item{}, err
	}
	item.ID = id
	item.UpdatedAt = m.now()
	m.items[id] = cloneItem(item)
	return item, nil
}

func (m *MemoryRepository) SoftDeleteItem(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return false, ErrItemNotFound
	}
	if item.Deleted {
		return false, nil
	}
	item.Deleted = true
	item.UpdatedAt = m.now()
	m.items[id] = item
	return true, nil
}

func (m *MemoryRepository) ListItems(_ context.Context, limit int) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, 0, len(m.items))
	for _, item := range m.items {
		if !item.Deleted {
			out = append(out, cloneItem(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Repository = (*MemoryRepository)(nil)
