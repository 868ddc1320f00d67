package oops_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/oakvm/internal/gc"
	"github.com/roach88/oakvm/internal/ir"
	"github.com/roach88/oakvm/internal/oops"
)

func TestArrayOf_Idempotent(t *testing.T) {
	f := newFixture(t, nil)

	for _, name := range []string{"app/Base", "app/Derived", "app/Marker", ir.ObjectClass} {
		for rank := 1; rank <= 3; rank++ {
			first := f.array(t, name, rank)
			second := f.array(t, name, rank)
			assert.Same(t, first, second, "%s rank %d", name, rank)
		}
	}

	// Rank 2 resolved directly equals two rank-1 steps.
	derived1 := f.array(t, "app/Derived", 1)
	derived2, err := f.u.ArrayOf(derived1, 1, false)
	require.NoError(t, err)
	assert.Same(t, f.array(t, "app/Derived", 2), derived2)
}

func TestArrayOf_ConcurrentConvergence(t *testing.T) {
	heapModes(t, func(t *testing.T, heapOpts []gc.Option) {
		f := newFixture(t, heapOpts)

		const workers = 32
		results := make([][]*oops.Klass, workers)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				// Alternate request order so threads race on different
				// parts of the lattice.
				order := []string{"app/Derived", "app/Base", "app/Marker", "app/Other"}
				if w%2 == 1 {
					order = []string{"app/Other", "app/Marker", "app/Base", "app/Derived"}
				}
				for _, name := range order {
					for rank := 3; rank >= 1; rank-- {
						k, err := f.u.ArrayOf(f.k[name], rank, false)
						if err != nil {
							t.Errorf("ArrayOf(%s, %d): %v", name, rank, err)
							return
						}
						results[w] = append(results[w], k)
					}
				}
			}(w)
		}
		wg.Wait()

		byName := make(map[string]*oops.Klass)
		for _, ks := range results {
			for _, k := range ks {
				if prev, ok := byName[k.Name()]; ok {
					assert.Same(t, prev, k, "duplicate descriptor for %s", k.Name())
				}
				byName[k.Name()] = k
			}
		}

		// Every array is registered exactly once with its loader.
		seen := make(map[string]int)
		for _, l := range f.u.Loaders() {
			for _, k := range l.Classes() {
				seen[k.Name()]++
			}
		}
		for name, n := range seen {
			assert.Equal(t, 1, n, "%s registered %d times", name, n)
		}
		assert.NoError(t, f.u.VerifyAll())
	})
}

func TestArrayOf_SupertypeLattice(t *testing.T) {
	f := newFixture(t, nil)

	derivedArr := f.array(t, "app/Derived", 1)
	baseArr := f.k["app/Base"].ArrayKlassOrNull()
	markerArr := f.k["app/Marker"].ArrayKlassOrNull()
	objectArr := f.u.ObjectKlass().ArrayKlassOrNull()

	// Supertype arrays were created before the requested one.
	require.NotNil(t, baseArr)
	require.NotNil(t, markerArr)
	require.NotNil(t, objectArr)

	assert.Same(t, baseArr, derivedArr.Super())
	assert.Same(t, objectArr, baseArr.Super())
	assert.Same(t, f.u.ObjectKlass(), objectArr.Super())
	assert.Same(t, objectArr, markerArr.Super())

	assert.Equal(t, []string{ir.CloneableClass, ir.SerializableClass, "[Lapp/Marker;"},
		names(derivedArr.SecondarySupers()))

	assert.True(t, f.u.IsSubtypeOf(derivedArr, baseArr))
	assert.True(t, f.u.IsSubtypeOf(derivedArr, markerArr))
	assert.True(t, f.u.IsSubtypeOf(derivedArr, objectArr))
	assert.True(t, f.u.IsSubtypeOf(derivedArr, f.u.CloneableKlass()))
	assert.True(t, f.u.IsSubtypeOf(derivedArr, f.u.SerializableKlass()))
	assert.False(t, f.u.IsSubtypeOf(baseArr, derivedArr))
	assert.False(t, f.u.IsSubtypeOf(baseArr, markerArr))
}

func TestArrayOf_SharedSecondarySupers(t *testing.T) {
	f := newFixture(t, nil)

	shared := f.u.ArrayInterfaces()
	for _, name := range []string{ir.ObjectClass, "app/Base", "app/Other", "app/Marker"} {
		supers := f.array(t, name, 1).SecondarySupers()
		require.Len(t, supers, 2)
		assert.Same(t, &shared[0], &supers[0], "%s[] should share the array interfaces", name)
	}

	supers := f.array(t, "app/Derived", 1).SecondarySupers()
	assert.NotSame(t, &shared[0], &supers[0])
}

func TestArrayOf_MultiDimensional(t *testing.T) {
	f := newFixture(t, nil)

	k := f.array(t, "app/Derived", 2)
	assert.Equal(t, "[[Lapp/Derived;", k.Name())
	assert.Equal(t, 2, k.Dimension())
	assert.Same(t, f.k["app/Derived"], k.BottomKlass())
	assert.Same(t, f.array(t, "app/Derived", 1), k.ElementKlass())
	assert.Same(t, k.ElementKlass(), k.LowerDimension())
	assert.Same(t, k, k.ElementKlass().HigherDimension())
	assert.Same(t, f.array(t, "app/Base", 2), k.Super())
	assert.Same(t, f.array(t, ir.ObjectClass, 1), f.array(t, ir.ObjectClass, 2).Super())
	assert.Equal(t,
		[]string{ir.CloneableClass, ir.SerializableClass, "[Ljava/lang/Cloneable;", "[Ljava/lang/Serializable;", "[[Lapp/Marker;"},
		names(k.SecondarySupers()))
	assert.Same(t, f.loader, k.Loader())
}

func TestArrayOf_PrimitiveElement(t *testing.T) {
	f := newFixture(t, nil)

	ints := f.u.TypeArrayKlass(oops.TInt)
	require.NotNil(t, ints)
	assert.Equal(t, "[I", ints.Name())
	assert.Same(t, ints, ints.BottomKlass())

	k, err := f.u.ArrayOf(ints, 1, false)
	require.NoError(t, err)
	assert.Equal(t, "[[I", k.Name())
	assert.Equal(t, 2, k.Dimension())
	assert.Same(t, ints, k.BottomKlass())
	assert.Same(t, f.u.ObjectKlass().ArrayKlassOrNull(), k.Super())
	assert.Equal(t,
		[]string{ir.CloneableClass, ir.SerializableClass, "[Ljava/lang/Cloneable;", "[Ljava/lang/Serializable;"},
		names(k.SecondarySupers()))
	assert.Same(t, f.u.BootLoader(), k.Loader())
}

func TestArrayOf_NullFree(t *testing.T) {
	f := newFixture(t, nil)

	k := f.nullFreeArray(t, "app/Point")
	nullable := f.k["app/Point"].ArrayKlassOrNull()
	require.NotNil(t, nullable)

	assert.Equal(t, "[Qapp/Point;", k.Name())
	assert.True(t, k.IsNullFreeArray())
	assert.True(t, k.LayoutHelper().IsNullFree())
	assert.False(t, nullable.IsNullFreeArray())
	assert.Same(t, nullable, k.Super())
	assert.Same(t, k, f.k["app/Point"].NullFreeArrayKlassOrNull())
	assert.Same(t, k, f.nullFreeArray(t, "app/Point"))
	assert.True(t, f.u.IsSubtypeOf(k, nullable))
	assert.False(t, f.u.IsSubtypeOf(nullable, k))
}

func TestArrayOf_ContractViolations(t *testing.T) {
	f := newFixture(t, nil)

	assert.Panics(t, func() { _, _ = f.u.ArrayOf(f.k["app/Base"], 0, false) })
	assert.Panics(t, func() { _, _ = f.u.ArrayOf(nil, 1, false) })
	assert.Panics(t, func() { _, _ = f.u.ArrayOf(f.k["app/Base"], 1, true) })
	assert.Panics(t, func() { _, _ = f.u.ArrayOf(f.k["app/Point"], 2, true) })

	defer func() {
		r := recover()
		cv, ok := r.(oops.ContractViolation)
		require.True(t, ok, "panic value %T", r)
		assert.Contains(t, cv.Message, "rank must be at least 1")
	}()
	_, _ = f.u.ArrayOf(f.k["app/Base"], -1, false)
}

func TestArrayOf_Reflection(t *testing.T) {
	f := newFixture(t, nil)

	k := f.array(t, "app/Derived", 1)
	assert.Equal(t, "[Lapp.Derived;", k.ExternalName())
	assert.Equal(t, "app", k.Module())
	assert.Equal(t, "app", k.Package())
	assert.Equal(t, oops.AccPublic|oops.AccAbstract|oops.AccFinal, k.ModifierFlags())
	assert.Equal(t, oops.AccAbstract|oops.AccFinal, f.array(t, "app/Other", 1).ModifierFlags())
	require.NotNil(t, k.Mirror())
	assert.Same(t, k, k.Mirror().Klass())
	assert.Equal(t, "[Lapp.Derived;", k.Mirror().Name())

	assert.True(t, k.CanBePrimarySuper())
	assert.False(t, f.array(t, "app/Marker", 1).CanBePrimarySuper())
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
	errs   []string
}

func (r *recordingObserver) ClassDefined(k *oops.Klass) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, k.Name())
	if k.Mirror() == nil {
		r.errs = append(r.errs, k.Name()+": no mirror")
	}
	if got, ok := k.Loader().FindLoadedClass(k.Name()); !ok || got != k {
		r.errs = append(r.errs, k.Name()+": not registered with loader")
	}
	if k.IsObjArray() && k.ElementKlass().ArrayKlassOrNull() != k && !k.IsNullFreeArray() {
		r.errs = append(r.errs, k.Name()+": not published")
	}
}

func TestArrayOf_PublicationOrder(t *testing.T) {
	f := newFixture(t, nil)
	obs := &recordingObserver{}
	f.u.AddObserver(obs)

	f.array(t, "app/Derived", 2)

	assert.Empty(t, obs.errs)
	// Supertype arrays are published before the arrays that name them.
	assert.Equal(t, []string{
		"[Ljava/lang/Object;",
		"[Lapp/Base;",
		"[Lapp/Marker;",
		"[Lapp/Derived;",
		"[Ljava/lang/Cloneable;",
		"[Ljava/lang/Serializable;",
		"[[Ljava/lang/Object;",
		"[[Lapp/Base;",
		"[[Lapp/Marker;",
		"[[Lapp/Derived;",
	}, obs.events)
}

func TestArrayOf_MetaspaceExhausted(t *testing.T) {
	// Bootstrap charges 2992 bytes to the boot loader; every loader gets
	// the same budget.
	f := newFixture(t, nil, oops.WithMetaspaceLimit(4096))

	loader := f.u.NewLoader("small", "small")
	var ks []*oops.Klass
	for _, name := range []string{"s/C0", "s/C1", "s/C2", "s/C3", "s/C4", "s/C5", "s/C6", "s/C7"} {
		k, err := f.u.DefineClass(loader, ir.ClassDecl{Name: name, Kind: ir.KindClass})
		require.NoError(t, err)
		ks = append(ks, k)
	}

	_, err := f.u.ArrayOf(ks[0], 1, false)
	require.NoError(t, err)

	_, err = f.u.ArrayOf(ks[1], 1, false)
	require.Error(t, err)
	assert.True(t, oops.IsOutOfMemory(err))
	assert.Contains(t, err.Error(), "Metaspace")
	assert.Nil(t, ks[1].ArrayKlassOrNull())

	_, err = f.u.ArrayOf(ks[1], 1, false)
	assert.True(t, oops.IsOutOfMemory(err))
}

func TestArrayOf_MirrorFailureRefundsMetaspace(t *testing.T) {
	var failing atomic.Bool
	factory := func(k *oops.Klass) (*oops.Mirror, error) {
		if failing.Load() {
			return nil, errors.New("mirror unavailable")
		}
		return oops.NewMirror(k, k.ExternalName()), nil
	}
	f := newFixture(t, nil, oops.WithMirrorFactory(factory))
	ms := f.loader.Metaspace()
	_, err := f.u.ArrayOf(f.u.ObjectKlass(), 1, false)
	require.NoError(t, err)

	failing.Store(true)
	before := ms.Used()
	for i := 0; i < 3; i++ {
		_, err := f.u.ArrayOf(f.k["app/Other"], 1, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mirror unavailable")
	}
	_, err = f.u.DefineClass(f.loader, ir.ClassDecl{Name: "app/Late", Kind: ir.KindClass})
	require.Error(t, err)
	assert.Equal(t, before, ms.Used())
	assert.Nil(t, f.k["app/Other"].ArrayKlassOrNull())

	failing.Store(false)
	k, err := f.u.ArrayOf(f.k["app/Other"], 1, false)
	require.NoError(t, err)
	assert.Equal(t, "[Lapp/Other;", k.Name())
	assert.Greater(t, ms.Used(), before)

	_, err = f.u.DefineClass(f.loader, ir.ClassDecl{Name: "app/Late", Kind: ir.KindClass})
	assert.NoError(t, err)
}

func TestResolveName(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name string
		want string
	}{
		{"app/Base", "app/Base"},
		{"[Lapp/Base;", "[Lapp/Base;"},
		{"[[Lapp/Derived;", "[[Lapp/Derived;"},
		{"[I", "[I"},
		{"[[J", "[[J"},
		{"[Qapp/Point;", "[Qapp/Point;"},
		{"[[Qapp/Point;", "[[Qapp/Point;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := f.u.ResolveName(f.loader, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, k.Name())
		})
	}

	for _, bad := range []string{"app/Missing", "[Lapp/Missing;", "[X", "[Lapp/Base", "[", "[L;"} {
		_, err := f.u.ResolveName(f.loader, bad)
		assert.True(t, oops.IsNoClassDefFound(err), "%q: %v", bad, err)
	}

	_, err := f.u.ResolveName(f.loader, "[Qapp/Base;")
	assert.Equal(t, oops.ErrKindLinkage, oops.KindOf(err))
}
