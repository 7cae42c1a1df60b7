package kv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Memory(t *testing.T) {
	type Foo struct {
		Name string
		Age  int
	}
	s := NewMemStore()

	_, err := Get[Foo](t.Context(), s, "foobar")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Put(t.Context(), s, "p1", Foo{Name: "P1", Age: 10}, PutOptions{}))
	require.NoError(t, Put(t.Context(), s, "p2", Foo{Name: "P2", Age: 20}, PutOptions{}))

	loaded, err := Get[Foo](t.Context(), s, "p1")
	require.NoError(t, err)
	require.Equal(t, Foo{Name: "P1", Age: 10}, loaded)

	require.NoError(t, s.Delete(t.Context(), "p1"))
	_, err = Get[Foo](t.Context(), s, "p1")
	require.ErrorIs(t, err, ErrNotFound)
}

func Test_Memory_TTL(t *testing.T) {
	now := time.Now()
	s := NewMemStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(t.Context(), "k", Entry{Data: []byte("v")}, PutOptions{TTL: time.Minute}))
	_, err := s.Get(t.Context(), "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Get(t.Context(), "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func Test_Memory_CopiesEntries(t *testing.T) {
	s := NewMemStore()
	data := []byte("abc")
	require.NoError(t, s.Put(t.Context(), "k", Entry{Data: data, Meta: map[string]string{"a": "1"}}, PutOptions{}))
	data[0] = 'x'

	e, err := s.Get(t.Context(), "k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(e.Data))
	e.Meta["a"] = "2"

	e2, err := s.Get(t.Context(), "k")
	require.NoError(t, err)
	require.Equal(t, "1", e2.Meta["a"])
}
