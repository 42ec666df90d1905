package ownerqueue

import (
	"testing"

	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var testOwner = bitfield.MustParseAddress("0xa11ce00000000000000000000000000000000001")

func starts(q *Queue) []uint64 {
	var s []uint64
	for _, sp := range q.Ranges() {
		s = append(s, sp.StartID)
	}
	return s
}

func TestInsertPrimitives(t *testing.T) {
	q := New(testOwner)

	a, err := q.Append(10, 2)
	require.NoError(t, err)
	b, err := q.Append(20, 3)
	require.NoError(t, err)
	_, err = q.Prepend(1, 1)
	require.NoError(t, err)
	_, err = q.InsertBefore(b, 15, 1)
	require.NoError(t, err)
	_, err = q.InsertAfter(b, 30, 4)
	require.NoError(t, err)
	_, err = q.InsertAfter(a, 12, 1)
	require.NoError(t, err)

	assert.Equal(t, []uint64{1, 10, 12, 15, 20, 30}, starts(q))
	assert.Equal(t, 6, q.Len())
	assert.Equal(t, uint64(12), q.Units())
	require.NoError(t, q.Check())

	m := q.Meta()
	assert.Equal(t, uint64(7), m.NextNodeID)
	assert.Equal(t, uint64(6), m.Size)
}

func TestInsertBeforeNilCursorAppends(t *testing.T) {
	q := New(testOwner)
	_, err := q.InsertBefore(NilNode, 5, 1)
	require.NoError(t, err)
	_, err = q.InsertBefore(NilNode, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 7}, starts(q))
}

func TestRemove(t *testing.T) {
	q := New(testOwner)
	ids := make([]NodeID, 0, 3)
	for _, s := range []uint64{1, 5, 9} {
		id, err := q.Append(s, 2)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	n, err := q.Remove(ids[1])
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n.StartID)
	assert.Equal(t, []uint64{1, 9}, starts(q))
	require.NoError(t, q.Check())

	_, err = q.Remove(ids[0])
	require.NoError(t, err)
	_, err = q.Remove(ids[2])
	require.NoError(t, err)
	assert.Equal(t, NilNode, q.Head())
	assert.Equal(t, NilNode, q.Tail())
	assert.Zero(t, q.Units())
	require.NoError(t, q.Check())

	_, err = q.Remove(ids[0])
	assert.ErrorIs(t, err, ErrNodeNotFound)

	// node ids are never reused
	id, err := q.Append(1, 1)
	require.NoError(t, err)
	assert.Equal(t, NodeID(4), id)
}

func TestResize(t *testing.T) {
	q := New(testOwner)
	a, err := q.Append(1, 10)
	require.NoError(t, err)
	_, err = q.Append(20, 1)
	require.NoError(t, err)

	require.NoError(t, q.Resize(a, 4, 7))
	n, ok := q.NodeAt(4)
	require.True(t, ok)
	assert.Equal(t, a, n.ID)
	_, ok = q.NodeAt(1)
	assert.False(t, ok)
	assert.Equal(t, uint64(8), q.Units())

	assert.ErrorIs(t, q.Resize(a, 20, 1), ErrStartInUse)
	assert.ErrorIs(t, q.Resize(a, 4, 0), ErrEmptyRange)
	assert.ErrorIs(t, q.Resize(99, 4, 1), ErrNodeNotFound)
	require.NoError(t, q.Check())
}

func TestNodeRejections(t *testing.T) {
	q := New(testOwner)
	_, err := q.Append(1, 0)
	assert.ErrorIs(t, err, ErrEmptyRange)
	_, err = q.Append(1, 1)
	require.NoError(t, err)
	_, err = q.Prepend(1, 3)
	assert.ErrorIs(t, err, ErrStartInUse)
	_, err = q.InsertBefore(42, 2, 1)
	assert.ErrorIs(t, err, ErrNodeNotFound)
	_, err = q.InsertAfter(42, 2, 1)
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.Equal(t, 1, q.Len())
}

func TestGlyphIDs(t *testing.T) {
	q := New(testOwner)
	_, err := q.Append(8, 2)
	require.NoError(t, err)
	_, err = q.Append(1, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{8, 9, 1, 2, 3}, q.GlyphIDs())
	assert.Equal(t, []Span{{8, 2}, {1, 3}}, q.Ranges())
}

func TestExportRestore(t *testing.T) {
	q := New(testOwner)
	for _, s := range []uint64{30, 10, 20} {
		_, err := q.Append(s, 5)
		require.NoError(t, err)
	}
	_, err := q.Remove(q.Head())
	require.NoError(t, err)

	meta, nodes := q.Export()
	r, err := Restore(testOwner, meta, nodes)
	require.NoError(t, err)
	assert.Equal(t, q.Ranges(), r.Ranges())
	assert.Equal(t, q.Meta(), r.Meta())
	assert.Equal(t, q.Units(), r.Units())

	// a broken link is caught
	nodes[0].Next = 77
	_, err = Restore(testOwner, meta, nodes)
	assert.ErrorIs(t, err, ErrCorrupt)
}

// TestQueueModel drives random primitive sequences against a slice model.
func TestQueueModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := New(testOwner)
		var model []uint64
		var next uint64 = 1

		indexOf := func(start uint64) int {
			for i, s := range model {
				if s == start {
					return i
				}
			}
			return -1
		}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			start := next
			next++
			var pick uint64
			if len(model) > 0 {
				pick = model[rapid.IntRange(0, len(model)-1).Draw(t, "pick")]
			}
			cursor, _ := q.NodeAt(pick)

			switch op := rapid.IntRange(0, 4).Draw(t, "op"); {
			case op == 0:
				_, err := q.Append(start, 1)
				if err != nil {
					t.Fatal(err)
				}
				model = append(model, start)
			case op == 1:
				_, err := q.Prepend(start, 1)
				if err != nil {
					t.Fatal(err)
				}
				model = append([]uint64{start}, model...)
			case op == 2 && len(model) > 0:
				_, err := q.InsertBefore(cursor.ID, start, 1)
				if err != nil {
					t.Fatal(err)
				}
				at := indexOf(pick)
				model = append(model[:at], append([]uint64{start}, model[at:]...)...)
			case op == 3 && len(model) > 0:
				_, err := q.InsertAfter(cursor.ID, start, 1)
				if err != nil {
					t.Fatal(err)
				}
				at := indexOf(pick) + 1
				model = append(model[:at], append([]uint64{start}, model[at:]...)...)
			case op == 4 && len(model) > 0:
				if _, err := q.Remove(cursor.ID); err != nil {
					t.Fatal(err)
				}
				at := indexOf(pick)
				model = append(model[:at], model[at+1:]...)
			}

			if err := q.Check(); err != nil {
				t.Fatal(err)
			}
			got := starts(q)
			if len(got) != len(model) {
				t.Fatalf("queue %v, model %v", got, model)
			}
			for j := range got {
				if got[j] != model[j] {
					t.Fatalf("queue %v, model %v", got, model)
				}
			}
		}
	})
}
