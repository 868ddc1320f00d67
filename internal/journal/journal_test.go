package journal

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/oakvm/internal/attach"
	"github.com/roach88/oakvm/internal/gc"
	"github.com/roach88/oakvm/internal/ir"
	"github.com/roach88/oakvm/internal/oops"
	"github.com/roach88/oakvm/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// runJournal starts j and returns a function that stops it and waits for
// Run to return.
func runJournal(t *testing.T, j *Journal) func() {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- j.Run(context.Background()) }()
	return func() {
		j.Stop()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("journal did not stop")
		}
	}
}

// recorder captures class names in notification order.
type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) ClassDefined(k *oops.Klass) {
	r.mu.Lock()
	r.names = append(r.names, k.Name())
	r.mu.Unlock()
}

func TestJournal_ClassEventsInPublicationOrder(t *testing.T) {
	s := openStore(t)
	j := New(s)
	stop := runJournal(t, j)

	u, err := oops.New(gc.New())
	require.NoError(t, err)
	rec := &recorder{}
	u.AddObserver(rec)
	u.AddObserver(j)

	loader := u.NewLoader("app", "app")
	_, err = u.DefineHierarchy(loader, &ir.Hierarchy{Classes: []ir.ClassDecl{
		{Name: "app/Marker", Kind: ir.KindInterface, Access: ir.AccessPublic},
		{Name: "app/Base", Kind: ir.KindClass, Interfaces: []string{"app/Marker"}, Access: ir.AccessPublic},
	}})
	require.NoError(t, err)

	base, ok := loader.FindLoadedClass("app/Base")
	require.True(t, ok)
	_, err = u.ArrayOf(base, 2, false)
	require.NoError(t, err)

	stop()

	events, err := s.ReadClassEvents(context.Background(), store.ClassFilter{})
	require.NoError(t, err)
	require.Len(t, events, len(rec.names))

	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, rec.names[i], ev.Name)
	}
	assert.Equal(t, int64(len(events)), j.Written())
	assert.Zero(t, j.Failed())
}

func TestJournal_ClassEventFields(t *testing.T) {
	u, err := oops.New(gc.New())
	require.NoError(t, err)
	loader := u.NewLoader("app", "app")
	_, err = u.DefineHierarchy(loader, &ir.Hierarchy{Classes: []ir.ClassDecl{
		{Name: "app/Point", Kind: ir.KindClass, Flattenable: true, Access: ir.AccessPublic},
	}})
	require.NoError(t, err)
	point, _ := loader.FindLoadedClass("app/Point")

	k, err := u.ArrayOf(point, 1, true)
	require.NoError(t, err)

	ev := ClassEventFor(k)
	assert.Equal(t, "[Qapp/Point;", ev.Name)
	assert.Equal(t, "objArray", ev.Kind)
	assert.Equal(t, "[Lapp/Point;", ev.Super)
	assert.Equal(t, "app", ev.Loader)
	assert.Equal(t, loader.ID().String(), ev.LoaderID)
	assert.Equal(t, 1, ev.Dimension)
	assert.True(t, ev.NullFree)
	assert.Equal(t, int32(k.LayoutHelper()), ev.Layout)
	assert.Zero(t, ev.Seq)
}

func TestJournal_AttachRecords(t *testing.T) {
	s := openStore(t)
	j := New(s)
	stop := runJournal(t, j)

	id := uuid.New()
	j.OperationCompleted(attach.Completion{
		ID:          id,
		Name:        "resolve",
		Args:        [attach.ArgCountMax]string{"app/Base", "2", ""},
		Pipe:        `\\.\pipe\javatool7`,
		Code:        attach.CodeOK,
		OutputBytes: 30,
		Duration:    1500 * time.Microsecond,
	})
	stop()

	got, err := s.ReadAttachRecord(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, ir.AttachRecord{
		ID:             id.String(),
		Seq:            1,
		Command:        "resolve",
		Args:           []string{"app/Base", "2", ""},
		Pipe:           `\\.\pipe\javatool7`,
		Code:           0,
		OutputBytes:    30,
		DurationMicros: 1500,
	}, got)
}

func TestJournal_Resume(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteAttachRecord(ctx, ir.AttachRecord{ID: "old", Seq: 41, Command: "properties"}))

	j, err := Resume(ctx, s)
	require.NoError(t, err)
	stop := runJournal(t, j)
	j.OperationCompleted(attach.Completion{ID: uuid.New(), Name: "classes"})
	stop()

	recs, err := s.ReadAttachRecords(ctx, "classes")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(42), recs[0].Seq)
}

func TestJournal_DropsAfterStop(t *testing.T) {
	j := New(openStore(t))
	j.Stop()

	j.OperationCompleted(attach.Completion{ID: uuid.New(), Name: "properties"})
	assert.Equal(t, int64(1), j.Dropped())
	assert.Zero(t, j.Pending())
}

func TestJournal_RunCancelled(t *testing.T) {
	j := New(openStore(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := j.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJournal_WriteFailureContinues(t *testing.T) {
	s := openStore(t)
	j := New(s)

	bad := ir.ClassEvent{Name: "app/Bad", Kind: "struct", Loader: "app", LoaderID: "x"}
	j.enqueue(Event{Type: EventTypeClass, Class: &bad})
	j.OperationCompleted(attach.Completion{ID: uuid.New(), Name: "properties"})

	stop := runJournal(t, j)
	stop()

	assert.Equal(t, int64(1), j.Failed())
	assert.Equal(t, int64(1), j.Written())

	recs, err := s.ReadAttachRecords(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(2), recs[0].Seq)
}
