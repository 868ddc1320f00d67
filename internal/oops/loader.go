package oops

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Metaspace accounts the metadata bytes allocated on behalf of one loader.
// A zero limit means unlimited.
type Metaspace struct {
	limit int64
	used  atomic.Int64
}

// Allocate reserves size bytes or fails with an out-of-memory error.
func (m *Metaspace) Allocate(size int64) error {
	for {
		used := m.used.Load()
		if m.limit > 0 && used+size > m.limit {
			return NewOutOfMemory("Metaspace", size, m.limit-used)
		}
		if m.used.CompareAndSwap(used, used+size) {
			return nil
		}
	}
}

// Deallocate returns size bytes reserved by Allocate.
func (m *Metaspace) Deallocate(size int64) {
	m.used.Add(-size)
}

// Used returns the reserved byte count.
func (m *Metaspace) Used() int64 { return m.used.Load() }

// Loader is a class-loader scope. It owns every klass it defines, including
// array klasses whose bottom klass it defines, for its whole lifetime.
type Loader struct {
	id        uuid.UUID
	name      string
	module    string
	parent    *Loader
	metaspace *Metaspace

	dictionary cmap.ConcurrentMap[string, *Klass]

	mu      sync.Mutex
	classes []*Klass
}

func newLoader(name, module string, parent *Loader, metaspaceLimit int64) *Loader {
	return &Loader{
		id:         uuid.Must(uuid.NewV7()),
		name:       name,
		module:     module,
		parent:     parent,
		metaspace:  &Metaspace{limit: metaspaceLimit},
		dictionary: cmap.New[*Klass](),
	}
}

// ID returns the loader identity.
func (l *Loader) ID() uuid.UUID { return l.id }

// Name returns the loader name.
func (l *Loader) Name() string { return l.name }

// Module returns the module assigned to classes that declare none.
func (l *Loader) Module() string { return l.module }

// Parent returns the delegation parent, nil for the boot loader.
func (l *Loader) Parent() *Loader { return l.parent }

// Metaspace returns the metadata budget of the loader.
func (l *Loader) Metaspace() *Metaspace { return l.metaspace }

// AddClass appends k to the loader's class list and dictionary. It must be
// called exactly once per klass, after the klass and its mirror are fully
// constructed.
func (l *Loader) AddClass(k *Klass) {
	guarantee(k.mirror != nil, "klass %s added to loader before its mirror exists", k.name)
	l.mu.Lock()
	l.classes = append(l.classes, k)
	l.mu.Unlock()
	l.dictionary.Set(k.name, k)
}

// Classes returns a snapshot of the defined classes in definition order.
func (l *Loader) Classes() []*Klass {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Klass, len(l.classes))
	copy(out, l.classes)
	return out
}

// ClassCount returns the number of defined classes.
func (l *Loader) ClassCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.classes)
}

// FindLoadedClass looks a name up in this loader, then in its parents.
func (l *Loader) FindLoadedClass(name string) (*Klass, bool) {
	for p := l; p != nil; p = p.parent {
		if k, ok := p.dictionary.Get(name); ok && k != nil {
			return k, true
		}
	}
	return nil, false
}

// reserve claims a name for a definition in progress. Returns false if the
// name is already taken by a finished or in-progress definition.
func (l *Loader) reserve(name string) bool {
	return l.dictionary.SetIfAbsent(name, nil)
}

// release drops a reservation made by reserve after a failed definition.
func (l *Loader) release(name string) {
	l.dictionary.RemoveCb(name, func(_ string, v *Klass, exists bool) bool {
		return exists && v == nil
	})
}
