package oops

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/oakvm/internal/ir"
)

// Heap is the object allocation collaborator. Implementations account
// sizes, hand out narrow handles and decode them.
type Heap interface {
	Decoder

	// UseCompressedOops reports whether reference slots are narrow.
	UseCompressedOops() bool

	// ArrayAllocate returns a zero-filled reference array of size bytes.
	ArrayAllocate(k *Klass, size int64, length int, zero bool) (*ObjArray, error)

	// TypeArrayAllocate returns a zero-filled primitive array.
	TypeArrayAllocate(k *Klass, size int64, length int) (*TypeArray, error)

	// InstanceAllocate returns a new instance of k.
	InstanceAllocate(k *Klass, size int64) (*Instance, error)
}

// ClassObserver is notified once per klass after it is published.
// Implementations must not block.
type ClassObserver interface {
	ClassDefined(k *Klass)
}

// FlatArrayCopier copies into flattened value arrays when flat arrays are
// enabled.
type FlatArrayCopier interface {
	CopyArray(src *ObjArray, srcPos int, dst Array, dstPos int, length int) error
}

// MirrorFactory creates the reflective handle of a klass.
type MirrorFactory func(k *Klass) (*Mirror, error)

const (
	// DefaultMaxArrayLength is the largest length AllocateArray accepts.
	DefaultMaxArrayLength = math.MaxInt32 - arrayHeaderSize/narrowOopSize

	// DefaultSubtypeCacheSize bounds the subtype-check result cache.
	DefaultSubtypeCacheSize = 4096

	// DefaultMaxElementPrintSize bounds element dumps in OopPrintOn.
	DefaultMaxElementPrintSize = 256

	// Metadata sizes charged to the defining loader's metaspace.
	instanceKlassSize  = 464
	objArrayKlassSize  = 208
	typeArrayKlassSize = 200
)

// Option configures a Universe.
type Option func(*Universe)

// WithMaxArrayLength sets the allocation length limit.
func WithMaxArrayLength(n int) Option {
	return func(u *Universe) { u.maxArrayLength = n }
}

// WithFlatArrays enables delegation of copies into flat arrays.
func WithFlatArrays(c FlatArrayCopier) Option {
	return func(u *Universe) {
		u.useFlatArray = c != nil
		u.flatCopier = c
	}
}

// WithSubtypeCacheSize sets the subtype cache capacity.
func WithSubtypeCacheSize(n int) Option {
	return func(u *Universe) { u.subtypeCacheSize = n }
}

// WithMetaspaceLimit sets the per-loader metadata budget in bytes.
// Zero means unlimited.
func WithMetaspaceLimit(n int64) Option {
	return func(u *Universe) { u.metaspaceLimit = n }
}

// WithMaxElementPrintSize sets how many elements OopPrintOn prints.
func WithMaxElementPrintSize(n int) Option {
	return func(u *Universe) { u.maxElementPrintSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(u *Universe) {
		if l != nil {
			u.logger = l
		}
	}
}

// WithMirrorFactory overrides mirror creation.
func WithMirrorFactory(f MirrorFactory) Option {
	return func(u *Universe) { u.mirrorFactory = f }
}

type subtypeKey struct {
	sub, super uint64
}

// Universe is the runtime context: well-known klasses, collaborators,
// flags and the array-creation lock. Construct one with New and share it.
type Universe struct {
	heap                Heap
	logger              *slog.Logger
	maxArrayLength      int
	useFlatArray        bool
	flatCopier          FlatArrayCopier
	subtypeCacheSize    int
	metaspaceLimit      int64
	maxElementPrintSize int
	mirrorFactory       MirrorFactory

	nextID atomic.Uint64

	// arrayLock serializes array klass creation. Lookups never take it.
	arrayLock sync.Mutex

	subtypeCache *lru.Cache[subtypeKey, bool]
	symbols      *SymbolTable

	observersMu sync.RWMutex
	observers   []ClassObserver

	loadersMu sync.Mutex
	loaders   []*Loader

	boot            *Loader
	object          *Klass
	cloneable       *Klass
	serializable    *Klass
	arrayInterfaces []*Klass
	typeArrays      map[BasicType]*Klass
}

// New creates a universe over heap and bootstraps the root object type,
// the two array marker interfaces and the primitive array klasses.
func New(heap Heap, opts ...Option) (*Universe, error) {
	if heap == nil {
		return nil, fmt.Errorf("universe: heap is required")
	}
	u := &Universe{
		heap:                heap,
		logger:              slog.Default(),
		maxArrayLength:      DefaultMaxArrayLength,
		subtypeCacheSize:    DefaultSubtypeCacheSize,
		maxElementPrintSize: DefaultMaxElementPrintSize,
		typeArrays:          make(map[BasicType]*Klass),
		symbols:             NewSymbolTable(),
	}
	u.mirrorFactory = u.defaultMirror

	for _, opt := range opts {
		opt(u)
	}

	cache, err := lru.New[subtypeKey, bool](u.subtypeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("universe: subtype cache: %w", err)
	}
	u.subtypeCache = cache

	if err := u.bootstrap(); err != nil {
		return nil, fmt.Errorf("universe: bootstrap: %w", err)
	}
	return u, nil
}

func (u *Universe) bootstrap() error {
	u.boot = u.NewLoader("boot", "java.base")

	var err error
	if u.object, err = u.DefineClass(u.boot, ir.ClassDecl{
		Name: ir.ObjectClass, Kind: ir.KindClass, Access: ir.AccessPublic,
	}); err != nil {
		return err
	}
	for _, name := range []string{ir.CloneableClass, ir.SerializableClass} {
		k, err := u.DefineClass(u.boot, ir.ClassDecl{
			Name: name, Kind: ir.KindInterface, Super: ir.ObjectClass, Access: ir.AccessPublic,
		})
		if err != nil {
			return err
		}
		if name == ir.CloneableClass {
			u.cloneable = k
		} else {
			u.serializable = k
		}
	}
	u.arrayInterfaces = []*Klass{u.cloneable, u.serializable}

	for _, t := range PrimitiveTypes {
		k, err := u.newTypeArrayKlass(t)
		if err != nil {
			return err
		}
		u.typeArrays[t] = k
	}
	return nil
}

// Heap returns the allocation collaborator.
func (u *Universe) Heap() Heap { return u.heap }

// Symbols returns the class name table.
func (u *Universe) Symbols() *SymbolTable { return u.symbols }

// Logger returns the logger.
func (u *Universe) Logger() *slog.Logger { return u.logger }

// BootLoader returns the loader of the well-known classes.
func (u *Universe) BootLoader() *Loader { return u.boot }

// ObjectKlass returns the root object type.
func (u *Universe) ObjectKlass() *Klass { return u.object }

// CloneableKlass returns the cloneable marker interface.
func (u *Universe) CloneableKlass() *Klass { return u.cloneable }

// SerializableKlass returns the serializable marker interface.
func (u *Universe) SerializableKlass() *Klass { return u.serializable }

// ArrayInterfaces returns the shared secondary-supers slice used by every
// array whose element type has no secondary supertypes.
func (u *Universe) ArrayInterfaces() []*Klass { return u.arrayInterfaces }

// TypeArrayKlass returns the primitive array klass for t.
func (u *Universe) TypeArrayKlass(t BasicType) *Klass { return u.typeArrays[t] }

// UseFlatArray reports whether copies into flat arrays are delegated.
func (u *Universe) UseFlatArray() bool { return u.useFlatArray }

// MaxArrayLength returns the allocation length limit.
func (u *Universe) MaxArrayLength() int { return u.maxArrayLength }

// NewLoader creates a loader delegating to the boot loader.
func (u *Universe) NewLoader(name, module string) *Loader {
	l := newLoader(name, module, u.boot, u.metaspaceLimit)
	u.loadersMu.Lock()
	u.loaders = append(u.loaders, l)
	u.loadersMu.Unlock()
	return l
}

// Loaders returns every loader in creation order, boot first.
func (u *Universe) Loaders() []*Loader {
	u.loadersMu.Lock()
	defer u.loadersMu.Unlock()
	out := make([]*Loader, len(u.loaders))
	copy(out, u.loaders)
	return out
}

// AddObserver registers o for class definition notifications.
func (u *Universe) AddObserver(o ClassObserver) {
	u.observersMu.Lock()
	defer u.observersMu.Unlock()
	u.observers = append(u.observers, o)
}

func (u *Universe) notifyClassDefined(k *Klass) {
	u.observersMu.RLock()
	defer u.observersMu.RUnlock()
	for _, o := range u.observers {
		o.ClassDefined(k)
	}
}

// IsSubtypeOf reports whether sub is sub or a subtype of super. Results
// are cached; supertypes never change after publication, so negative
// answers stay valid.
func (u *Universe) IsSubtypeOf(sub, super *Klass) bool {
	if sub == super {
		return true
	}
	key := subtypeKey{sub: sub.id, super: super.id}
	if v, ok := u.subtypeCache.Get(key); ok {
		return v
	}
	v := sub.isSubtypeOfSlow(super)
	u.subtypeCache.Add(key, v)
	return v
}

func (u *Universe) nextKlassID() uint64 {
	return u.nextID.Add(1)
}

func (u *Universe) defaultMirror(k *Klass) (*Mirror, error) {
	return &Mirror{klass: k, name: k.ExternalName()}, nil
}

func (u *Universe) createMirror(k *Klass) error {
	m, err := u.mirrorFactory(k)
	if err != nil {
		return fmt.Errorf("create mirror for %s: %w", k.name, err)
	}
	if m.klass == nil {
		m.klass = k
	}
	k.mirror = m
	return nil
}

// NewMirror builds a mirror for use by custom MirrorFactory functions.
func NewMirror(k *Klass, name string) *Mirror {
	return &Mirror{klass: k, name: name}
}
