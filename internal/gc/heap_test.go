package gc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/oakvm/internal/ir"
	"github.com/roach88/oakvm/internal/oops"
)

func newUniverse(t *testing.T, h *Heap) *oops.Universe {
	t.Helper()
	u, err := oops.New(h)
	require.NoError(t, err)
	return u
}

func TestHeap_HandlesRoundTrip(t *testing.T) {
	h := New()
	u := newUniverse(t, h)

	obj, err := h.InstanceAllocate(u.ObjectKlass(), 16)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), obj.Handle())
	assert.Same(t, obj, h.Decode(obj.Handle()))
	assert.Nil(t, h.Decode(0))
	assert.Nil(t, h.Decode(999))
	assert.Equal(t, 1, h.ObjectCount())
}

func TestHeap_CompressedMode(t *testing.T) {
	u := newUniverse(t, New(WithCompressedOops(true)))
	k, err := u.ArrayOf(u.ObjectKlass(), 1, false)
	require.NoError(t, err)

	narrow, err := u.AllocateArray(k, 2)
	require.NoError(t, err)
	assert.True(t, narrow.IsNarrow())

	wideHeap := New(WithCompressedOops(false))
	wu := newUniverse(t, wideHeap)
	wk, err := wu.ArrayOf(wu.ObjectKlass(), 1, false)
	require.NoError(t, err)
	wide, err := wu.AllocateArray(wk, 2)
	require.NoError(t, err)
	assert.False(t, wide.IsNarrow())
	assert.Equal(t, 3, wk.LayoutHelper().Log2ElementSize())
}

func TestHeap_Capacity(t *testing.T) {
	h := New(WithCapacity(48))
	u := newUniverse(t, h)
	ints := u.TypeArrayKlass(oops.TInt)

	_, err := u.AllocateTypeArray(ints, 4) // 32 bytes
	require.NoError(t, err)
	assert.Equal(t, int64(32), h.Used())

	_, err = u.AllocateTypeArray(ints, 4)
	require.Error(t, err)
	assert.True(t, oops.IsOutOfMemory(err))
	assert.Equal(t, int64(32), h.Used())

	_, err = u.AllocateTypeArray(ints, 0) // 16 bytes
	require.NoError(t, err)
	assert.Equal(t, int64(48), h.Used())
}

func TestHeap_Unlimited(t *testing.T) {
	h := New(WithCapacity(0))
	assert.Equal(t, int64(0), h.Capacity())
	require.NoError(t, h.reserve(1<<50))
}

func TestHeap_ConcurrentAllocation(t *testing.T) {
	h := New()
	u := newUniverse(t, h)
	loader := u.NewLoader("app", "app")
	k, err := u.DefineClass(loader, ir.ClassDecl{Name: "app/Item", Kind: ir.KindClass})
	require.NoError(t, err)

	const workers, per = 8, 100
	var wg sync.WaitGroup
	handles := make(chan uint32, workers*per)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				o, err := h.InstanceAllocate(k, 16)
				if err != nil {
					t.Error(err)
					return
				}
				handles <- o.Handle()
			}
		}()
	}
	wg.Wait()
	close(handles)

	seen := make(map[uint32]bool)
	for hd := range handles {
		assert.False(t, seen[hd], "handle %d issued twice", hd)
		seen[hd] = true
		assert.Same(t, k, h.Decode(hd).Klass())
	}
	assert.Len(t, seen, workers*per)
	assert.Equal(t, int64(workers*per*16), h.Used())
}
