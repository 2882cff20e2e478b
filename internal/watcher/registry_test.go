package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge-go/internal/statuschannel"
)

func newTestWatch(t *testing.T, projectID string, ch *fakeChannel) *Watch {
	t.Helper()
	factory, _ := captureFactory(ch)
	w, err := NewWatch(projectID, factory, newMemStore(), nil)
	require.NoError(t, err)
	return w
}

func TestRegistry(t *testing.T) {
	t.Run("should register and retrieve a watch", func(t *testing.T) {
		r := NewRegistry()
		w := newTestWatch(t, "proj-1", &fakeChannel{})

		require.NoError(t, r.Register(w))
		assert.Same(t, w, r.Get("proj-1"))
		assert.Equal(t, 1, r.Count())
	})

	t.Run("should reject a duplicate project", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(newTestWatch(t, "proj-1", &fakeChannel{})))

		err := r.Register(newTestWatch(t, "proj-1", &fakeChannel{}))
		assert.Error(t, err)
		assert.Equal(t, 1, r.Count())
	})

	t.Run("should reject a nil watch", func(t *testing.T) {
		r := NewRegistry()
		assert.Error(t, r.Register(nil))
	})

	t.Run("should stop a watch on unregister", func(t *testing.T) {
		r := NewRegistry()
		ch := &fakeChannel{}
		w := newTestWatch(t, "proj-1", ch)
		require.NoError(t, r.Register(w))
		require.NoError(t, w.Start())

		require.NoError(t, r.Unregister("proj-1"))
		assert.Equal(t, 1, ch.closed())
		assert.Nil(t, r.Get("proj-1"))
	})

	t.Run("should error when unregistering an unknown project", func(t *testing.T) {
		r := NewRegistry()
		assert.Error(t, r.Unregister("missing"))
	})

	t.Run("should list all registered watches", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(newTestWatch(t, "proj-1", &fakeChannel{})))
		require.NoError(t, r.Register(newTestWatch(t, "proj-2", &fakeChannel{})))

		watches := r.List()
		assert.Len(t, watches, 2)
	})

	t.Run("should stop every watch on unregister all", func(t *testing.T) {
		r := NewRegistry()
		ch1 := &fakeChannel{}
		ch2 := &fakeChannel{}
		w1 := newTestWatch(t, "proj-1", ch1)
		w2 := newTestWatch(t, "proj-2", ch2)
		require.NoError(t, r.Register(w1))
		require.NoError(t, r.Register(w2))
		require.NoError(t, w1.Start())
		require.NoError(t, w2.Start())

		require.NoError(t, r.UnregisterAll())
		assert.Equal(t, 0, r.Count())
		assert.Equal(t, 1, ch1.closed())
		assert.Equal(t, 1, ch2.closed())
	})
}

func TestService(t *testing.T) {
	newTestService := func(ch *fakeChannel) *Service {
		factory, _ := captureFactory(ch)
		return NewServiceWithFactory(factory, newMemStore(), nil)
	}

	t.Run("should start watching a project", func(t *testing.T) {
		ch := &fakeChannel{}
		s := newTestService(ch)

		w, err := s.WatchProject("proj-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"proj-1"}, ch.opened())
		assert.Same(t, w, s.Get("proj-1"))
	})

	t.Run("should reject watching the same project twice", func(t *testing.T) {
		s := newTestService(&fakeChannel{})
		_, err := s.WatchProject("proj-1")
		require.NoError(t, err)

		_, err = s.WatchProject("proj-1")
		assert.Error(t, err)
		assert.Equal(t, 1, s.Count())
	})

	t.Run("should stop the channel on unwatch", func(t *testing.T) {
		ch := &fakeChannel{}
		s := newTestService(ch)
		_, err := s.WatchProject("proj-1")
		require.NoError(t, err)

		require.NoError(t, s.Unwatch("proj-1"))
		assert.Equal(t, 1, ch.closed())
		assert.Nil(t, s.Get("proj-1"))
	})

	t.Run("should forward reconnect requests", func(t *testing.T) {
		ch := &fakeChannel{}
		s := newTestService(ch)
		_, err := s.WatchProject("proj-1")
		require.NoError(t, err)

		require.NoError(t, s.Reconnect("proj-1"))
		assert.Equal(t, 1, ch.reconnected())
	})

	t.Run("should error reconnecting an unwatched project", func(t *testing.T) {
		s := newTestService(&fakeChannel{})
		assert.Error(t, s.Reconnect("missing"))
	})

	t.Run("should list statuses ordered by project id", func(t *testing.T) {
		s := NewServiceWithFactory(func(projectID string, onMessage func(statuschannel.StatusMessage)) Channel {
			return &fakeChannel{}
		}, newMemStore(), nil)

		_, err := s.WatchProject("proj-b")
		require.NoError(t, err)
		_, err = s.WatchProject("proj-a")
		require.NoError(t, err)

		statuses := s.Statuses()
		require.Len(t, statuses, 2)
		assert.Equal(t, "proj-a", statuses[0].ProjectID)
		assert.Equal(t, "proj-b", statuses[1].ProjectID)
	})

	t.Run("should stop every watch on close", func(t *testing.T) {
		ch := &fakeChannel{}
		s := newTestService(ch)
		_, err := s.WatchProject("proj-1")
		require.NoError(t, err)

		require.NoError(t, s.Close())
		assert.Equal(t, 0, s.Count())
		assert.Equal(t, 1, ch.closed())
	})
}
