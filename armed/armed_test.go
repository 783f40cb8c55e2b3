package armed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cyberinferno/camingest/logger"
	"github.com/cyberinferno/camingest/tenant"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "", ttl, logger.NewNop()), mr
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	cam1 := tenant.Config{ID: "cam1", Armed: true}
	cam2 := tenant.Config{ID: "cam2", Armed: false}

	t.Run("missing key falls back to default", func(t *testing.T) {
		s, _ := newRedisStore(t, time.Millisecond)

		armed, err := s.IsArmed(ctx, cam1)
		require.NoError(t, err)
		assert.True(t, armed)

		armed, err = s.IsArmed(ctx, cam2)
		require.NoError(t, err)
		assert.False(t, armed)
	})

	t.Run("stored value wins", func(t *testing.T) {
		s, mr := newRedisStore(t, time.Millisecond)
		require.NoError(t, mr.Set("user_armed_status:cam1", "False"))

		armed, err := s.IsArmed(ctx, cam1)
		require.NoError(t, err)
		assert.False(t, armed)
	})

	t.Run("set writes lower-case strings", func(t *testing.T) {
		s, mr := newRedisStore(t, time.Minute)
		require.NoError(t, s.SetArmed(ctx, cam1, false))

		val, err := mr.Get("user_armed_status:cam1")
		require.NoError(t, err)
		assert.Equal(t, "false", val)

		armed, err := s.IsArmed(ctx, cam1)
		require.NoError(t, err)
		assert.False(t, armed)
	})

	t.Run("reads are cached", func(t *testing.T) {
		s, mr := newRedisStore(t, time.Minute)
		require.NoError(t, mr.Set("user_armed_status:cam2", "true"))

		armed, err := s.IsArmed(ctx, cam2)
		require.NoError(t, err)
		assert.True(t, armed)

		mr.Del("user_armed_status:cam2")
		armed, err = s.IsArmed(ctx, cam2)
		require.NoError(t, err)
		assert.True(t, armed)
	})

	t.Run("redis failure", func(t *testing.T) {
		s, mr := newRedisStore(t, time.Millisecond)
		mr.Close()

		_, err := s.IsArmed(ctx, cam1)
		assert.Error(t, err)
		assert.Error(t, s.SetArmed(ctx, cam1, true))
	})

	t.Run("custom prefix", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		s := NewRedisStore(client, "armed:", time.Minute, logger.NewNop())

		require.NoError(t, s.SetArmed(ctx, cam1, true))
		assert.True(t, mr.Exists("armed:cam1"))
	})
}

func TestRedisStore_InitDefaults(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Millisecond)
	require.NoError(t, mr.Set("user_armed_status:cam1", "false"))

	err := s.InitDefaults(ctx, []tenant.Config{
		{ID: "cam1", Armed: true},
		{ID: "cam2", Armed: true},
	})
	require.NoError(t, err)

	val, err := mr.Get("user_armed_status:cam1")
	require.NoError(t, err)
	assert.Equal(t, "false", val, "existing state is kept")

	val, err = mr.Get("user_armed_status:cam2")
	require.NoError(t, err)
	assert.Equal(t, "true", val)
}

func TestStaticStore(t *testing.T) {
	ctx := context.Background()
	s := NewStaticStore()
	cam1 := tenant.Config{ID: "cam1", Armed: true}

	armed, err := s.IsArmed(ctx, cam1)
	require.NoError(t, err)
	assert.True(t, armed)

	require.NoError(t, s.SetArmed(ctx, cam1, false))
	armed, err = s.IsArmed(ctx, cam1)
	require.NoError(t, err)
	assert.False(t, armed)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages map[string][]string
}

func (n *recordingNotifier) Notify(context.Context, string, string, string) error { return nil }

func (n *recordingNotifier) SendMessage(_ context.Context, chatID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.messages == nil {
		n.messages = map[string][]string{}
	}
	n.messages[chatID] = append(n.messages[chatID], text)
	return nil
}

func at(hour, minute, second int) time.Time {
	return time.Date(2024, 5, 1, hour, minute, second, 0, time.Local)
}

func TestAutoArmer_Check(t *testing.T) {
	ctx := context.Background()
	night := tenant.Config{ID: "night", ChatID: "-1", WorkingStart: "19:00", WorkingEnd: "05:00"}
	midnight := tenant.Config{ID: "midnight", ChatID: "-2", WorkingStart: "00:00", WorkingEnd: "06:00"}
	tenants := []tenant.Config{night, midnight}

	t.Run("arms a disarmed tenant at window start", func(t *testing.T) {
		store := NewStaticStore()
		n := &recordingNotifier{}
		a := NewAutoArmer(store, n, tenants, func() time.Time { return at(19, 0, 30) }, logger.NewNop())

		assert.Equal(t, []string{"night"}, a.Check(ctx))
		armed, _ := store.IsArmed(ctx, night)
		assert.True(t, armed)
		assert.Equal(t, []string{AutoArmMessage}, n.messages["-1"])

		// Already armed: nothing to do.
		assert.Empty(t, a.Check(ctx))
		assert.Len(t, n.messages["-1"], 1)
	})

	t.Run("outside the margin", func(t *testing.T) {
		store := NewStaticStore()
		n := &recordingNotifier{}
		a := NewAutoArmer(store, n, tenants, func() time.Time { return at(19, 1, 30) }, logger.NewNop())

		assert.Empty(t, a.Check(ctx))
		assert.Empty(t, n.messages)
	})

	t.Run("margin wraps midnight", func(t *testing.T) {
		store := NewStaticStore()
		n := &recordingNotifier{}
		a := NewAutoArmer(store, n, tenants, func() time.Time { return at(23, 59, 30) }, logger.NewNop())

		assert.Equal(t, []string{"midnight"}, a.Check(ctx))
	})

	t.Run("manually armed tenant is left alone", func(t *testing.T) {
		store := NewStaticStore()
		require.NoError(t, store.SetArmed(ctx, night, true))
		n := &recordingNotifier{}
		a := NewAutoArmer(store, n, tenants, func() time.Time { return at(18, 59, 10) }, logger.NewNop())

		assert.Empty(t, a.Check(ctx))
		assert.Empty(t, n.messages)
	})
}

func TestAutoArmer_Run(t *testing.T) {
	store := NewStaticStore()
	night := tenant.Config{ID: "night", ChatID: "-1", WorkingStart: "19:00", WorkingEnd: "05:00"}
	a := NewAutoArmer(store, &recordingNotifier{}, []tenant.Config{night}, func() time.Time { return at(19, 0, 0) }, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		armed, _ := store.IsArmed(context.Background(), night)
		return armed
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
