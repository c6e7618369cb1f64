package arena

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/memphis242/ccol-sub000/internal/utils"
	"golang.org/x/exp/slog"
)

type handleSlot[T any] struct {
	item      T
	allocated bool
}

// HandlePool is a fixed set of reusable T values. Dispatch leases a zeroed slot and Reclaim returns
// it; the pool never grows, so every pointer it hands out stays valid for the life of the pool.
type HandlePool[T any] struct {
	logger *slog.Logger
	mutex  utils.OptionalMutex

	slots          []handleSlot[T]
	nextFree       int
	allocatedCount int
	owners         *swiss.Map[*T, int]
}

// NewHandlePool creates a HandlePool with options.PoolSize slots, or DefaultPoolSize when it is 0.
// Only PoolSize and Flags are read from options.
func NewHandlePool[T any](logger *slog.Logger, options CreateOptions) (*HandlePool[T], error) {
	if logger == nil {
		logger = slog.Default()
	}

	size := options.PoolSize
	if size == 0 {
		size = DefaultPoolSize
	}
	if size < 0 {
		return nil, errors.Newf("arena.CreateOptions.PoolSize must not be negative, but was %d", size)
	}

	pool := &HandlePool[T]{
		logger: logger,
		slots:  make([]handleSlot[T], size),
		owners: swiss.NewMap[*T, int](uint32(size)),
	}
	pool.mutex.UseMutex = options.Flags&CreateExternallySynchronized == 0

	for i := range pool.slots {
		pool.owners.Put(&pool.slots[i].item, i)
	}

	logger.Debug("HandlePool::New", slog.Int("Size", size))
	return pool, nil
}

// Dispatch leases the slot under the cursor and moves the cursor to the next free slot, wrapping
// around the end of the pool. The error matches ErrPoolExhausted when every slot is leased.
func (p *HandlePool[T]) Dispatch() (*T, error) {
	p.logger.Debug("HandlePool::Dispatch")

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.allocatedCount == len(p.slots) {
		return nil, errors.Wrapf(ErrPoolExhausted, "all %d slots are in use", len(p.slots))
	}

	slot := &p.slots[p.nextFree]
	if slot.allocated {
		panic("handle pool cursor points at a slot that is already allocated")
	}

	var zero T
	slot.item = zero
	slot.allocated = true
	p.allocatedCount++

	if p.allocatedCount < len(p.slots) {
		for i := 1; i < len(p.slots); i++ {
			index := (p.nextFree + i) % len(p.slots)
			if !p.slots[index].allocated {
				p.nextFree = index
				break
			}
		}
	}

	return &slot.item, nil
}

// Reclaim returns a leased slot to the pool. The slot is found by identity, so item must be a
// pointer returned from Dispatch. If the pool was exhausted, the cursor moves to the reclaimed slot.
func (p *HandlePool[T]) Reclaim(item *T) error {
	p.logger.Debug("HandlePool::Reclaim")

	p.mutex.Lock()
	defer p.mutex.Unlock()

	index, ok := p.owners.Get(item)
	if !ok {
		return ErrForeignHandle
	}

	slot := &p.slots[index]
	if !slot.allocated {
		return errors.Wrapf(ErrDoubleFree, "slot %d", index)
	}

	if p.allocatedCount == len(p.slots) {
		p.nextFree = index
	}

	var zero T
	slot.item = zero
	slot.allocated = false
	p.allocatedCount--

	return nil
}

// IsAllocated returns true if item is a slot of this pool that is currently leased
func (p *HandlePool[T]) IsAllocated(item *T) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	index, ok := p.owners.Get(item)
	return ok && p.slots[index].allocated
}

// Len returns the number of slots in the pool
func (p *HandlePool[T]) Len() int {
	return len(p.slots)
}

// Allocated returns the number of slots currently leased
func (p *HandlePool[T]) Allocated() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.allocatedCount
}

// Available returns the number of slots that can still be dispatched
func (p *HandlePool[T]) Available() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return len(p.slots) - p.allocatedCount
}

func (p *HandlePool[T]) Validate() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var allocated int
	for _, slot := range p.slots {
		if slot.allocated {
			allocated++
		}
	}

	if allocated != p.allocatedCount {
		return errors.Newf("the pool counts %d allocated slots, but %d slots are marked allocated", p.allocatedCount, allocated)
	}

	if p.owners.Count() != len(p.slots) {
		return errors.Newf("the pool has %d slots, but tracks %d owners", len(p.slots), p.owners.Count())
	}

	if allocated < len(p.slots) && p.slots[p.nextFree].allocated {
		return errors.Newf("the pool has free slots, but its cursor points at allocated slot %d", p.nextFree)
	}

	return nil
}
