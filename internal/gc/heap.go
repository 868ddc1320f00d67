package gc

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/roach88/oakvm/internal/oops"
)

// DefaultCapacity is the heap size used when no capacity is configured.
const DefaultCapacity = 256 << 20

// Heap implements oops.Heap.
type Heap struct {
	compressed bool
	capacity   int64
	used       atomic.Int64
	logger     *slog.Logger

	mu      sync.RWMutex
	handles []oops.Oop // index is the handle; 0 is the nil reference
}

// Option configures a Heap.
type Option func(*Heap)

// WithCompressedOops selects narrow (4-byte handle) reference slots.
func WithCompressedOops(on bool) Option {
	return func(h *Heap) { h.compressed = on }
}

// WithCapacity sets the heap size in bytes. Zero means unlimited.
func WithCapacity(bytes int64) Option {
	return func(h *Heap) { h.capacity = bytes }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Heap) {
		if l != nil {
			h.logger = l
		}
	}
}

// New creates a heap. References are narrow by default.
func New(opts ...Option) *Heap {
	h := &Heap{
		compressed: true,
		capacity:   DefaultCapacity,
		logger:     slog.Default(),
		handles:    make([]oops.Oop, 1, 1024),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// UseCompressedOops reports whether reference slots are narrow.
func (h *Heap) UseCompressedOops() bool { return h.compressed }

// ArrayAllocate allocates a reference array. Go memory is always zeroed,
// so zero only documents the caller's intent.
func (h *Heap) ArrayAllocate(k *oops.Klass, size int64, length int, zero bool) (*oops.ObjArray, error) {
	if err := h.reserve(size); err != nil {
		return nil, err
	}
	var dec oops.Decoder
	if h.compressed {
		dec = h
	}
	a, err := register(h, size, func(handle uint32) *oops.ObjArray {
		return oops.NewObjArray(k, length, handle, dec)
	})
	if err != nil {
		return nil, err
	}
	h.logger.Debug("array allocated",
		"class", k.Name(),
		"length", length,
		"bytes", size,
		"zero", zero)
	return a, nil
}

// TypeArrayAllocate allocates a primitive array.
func (h *Heap) TypeArrayAllocate(k *oops.Klass, size int64, length int) (*oops.TypeArray, error) {
	if err := h.reserve(size); err != nil {
		return nil, err
	}
	return register(h, size, func(handle uint32) *oops.TypeArray {
		return oops.NewTypeArray(k, length, handle)
	})
}

// InstanceAllocate allocates an instance.
func (h *Heap) InstanceAllocate(k *oops.Klass, size int64) (*oops.Instance, error) {
	if err := h.reserve(size); err != nil {
		return nil, err
	}
	return register(h, size, func(handle uint32) *oops.Instance {
		return oops.NewInstance(k, handle)
	})
}

// Decode returns the object with the given handle, or nil.
func (h *Heap) Decode(handle uint32) oops.Oop {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if int(handle) >= len(h.handles) {
		return nil
	}
	return h.handles[handle]
}

// Used returns the allocated byte count.
func (h *Heap) Used() int64 { return h.used.Load() }

// Capacity returns the heap size, or 0 when unlimited.
func (h *Heap) Capacity() int64 { return h.capacity }

// ObjectCount returns the number of live handles.
func (h *Heap) ObjectCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handles) - 1
}

func (h *Heap) reserve(size int64) error {
	for {
		used := h.used.Load()
		if h.capacity > 0 && used+size > h.capacity {
			return oops.NewOutOfMemory("Java heap space", size, h.capacity-used)
		}
		if h.used.CompareAndSwap(used, used+size) {
			return nil
		}
	}
}

func (h *Heap) unreserve(size int64) {
	h.used.Add(-size)
}

// register assigns the next handle to the object built by mk.
func register[T oops.Oop](h *Heap, size int64, mk func(handle uint32) T) (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if uint64(len(h.handles)) > math.MaxUint32 {
		h.unreserve(size)
		var zero T
		return zero, oops.NewOutOfMemory("handle table", 1, 0)
	}
	o := mk(uint32(len(h.handles)))
	h.handles = append(h.handles, o)
	return o, nil
}
