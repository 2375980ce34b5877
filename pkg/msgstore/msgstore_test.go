package msgstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roostchat/roost/pkg/dbutil"
	"github.com/roostchat/roost/pkg/message"
	"github.com/roostchat/roost/pkg/migrations"
)

var ctx = context.Background()

func newTestStore(t testing.TB) *Store {
	s, err := New(ctx, dbutil.NewTestDB(t))
	require.NoError(t, err)
	return s
}

func TestEmpty(t *testing.T) {
	s := newTestStore(t)
	ms, err := s.Since(ctx, message.Epoch)
	require.NoError(t, err)
	require.Len(t, ms, 0)
	ms, err = s.All(ctx)
	require.NoError(t, err)
	require.Len(t, ms, 0)
	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestAppendSince(t *testing.T) {
	s := newTestStore(t)
	in := []message.Message{
		message.NewText("a", 3000, "three"),
		message.NewImage("b", 1000, []byte{1, 2, 3}),
		message.NewText("c", 2000, "two"),
		message.NewImage("a", 4000, []byte{4}),
	}
	for _, m := range in {
		require.NoError(t, s.Append(ctx, m))
	}

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, ts := range []message.Timestamp{1000, 2000, 3000, 4000} {
		require.Equal(t, ts, all[i].Timestamp)
	}
	require.True(t, in[1].Equal(all[0]))

	// strictly after
	ms, err := s.Since(ctx, 2000)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	require.True(t, in[0].Equal(ms[0]))
	require.True(t, in[3].Equal(ms[1]))

	ms, err = s.Since(ctx, 4000)
	require.NoError(t, err)
	require.Len(t, ms, 0)
}

func TestEqualTimestampsAreBothStored(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(ctx, message.NewText("a", 1000, "x")))
	require.NoError(t, s.Append(ctx, message.NewImage("b", 1000, []byte{1})))
	require.NoError(t, s.Append(ctx, message.NewText("c", 1000, "y")))
	ms, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, ms, 3)
	require.Equal(t, "a", ms[0].Author)
	require.Equal(t, "c", ms[1].Author)
	require.Equal(t, "b", ms[2].Author)
}

func TestAppendInvalid(t *testing.T) {
	s := newTestStore(t)
	err := s.Append(ctx, message.Message{Author: "a", Timestamp: 1})
	var se *StorageError
	require.True(t, errors.As(err, &se))
	require.ErrorIs(t, err, message.ErrInvalidPayload)
}

func TestClosedStoreFails(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())
	err := s.Append(ctx, message.NewText("a", 1, "x"))
	var se *StorageError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "append", se.Op)
}

func TestOpenPersists(t *testing.T) {
	p := filepath.Join(t.TempDir(), "chat.db")
	s, err := Open(ctx, p)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, message.NewText("a", 1000, "hi")))
	require.NoError(t, s.Close())

	s, err = Open(ctx, p)
	require.NoError(t, err)
	defer s.Close()
	ms, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	require.True(t, message.NewText("a", 1000, "hi").Equal(ms[0]))

	n, err := migrations.Current(ctx, s.db)
	require.NoError(t, err)
	require.Equal(t, schema.N(), n)
}
