package directory

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanchita-suni/Calyx/pkg/core/crisis/state"
)

func exercise(t *testing.T, d Directory) {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	t.Cleanup(func() { _ = d.Delete(ctx, id) })

	_, err := d.Get(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	profile := state.UserProfile{Name: "Asha", Contacts: []state.Contact{{Name: "Ravi", Phone: "+15550001"}}}
	require.NoError(t, d.PutProfile(ctx, id, profile))
	require.NoError(t, d.PutLocation(ctx, id, state.Location{Lat: 12.5, Lng: 77.25}))
	require.NoError(t, d.PutLocation(ctx, id, state.Location{Lat: 13, Lng: 78}))

	rec, err := d.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.SessionID)
	assert.Equal(t, "Asha", rec.Profile.Name)
	require.Len(t, rec.Profile.Contacts, 1)
	require.NotNil(t, rec.Location)
	assert.Equal(t, 13.0, rec.Location.Lat)
	assert.False(t, rec.UpdatedAt.IsZero())

	require.NoError(t, d.Delete(ctx, id))
	_, err = d.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory(0))
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	require.NoError(t, m.PutProfile(ctx, "s", state.UserProfile{Contacts: []state.Contact{{Name: "a"}}}))

	rec, err := m.Get(ctx, "s")
	require.NoError(t, err)
	rec.Profile.Contacts[0].Name = "changed"

	rec, err = m.Get(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Profile.Contacts[0].Name)
}

func TestMemory_Expires(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }

	require.NoError(t, m.PutLocation(ctx, "s", state.Location{Lat: 1, Lng: 2}))
	now = now.Add(2 * time.Minute)
	_, err := m.Get(ctx, "s")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ConcurrentSessions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := uuid.NewString()
			for j := 0; j < 50; j++ {
				_ = m.PutLocation(ctx, id, state.Location{Lat: float64(j % 90), Lng: float64(i)})
				_, _ = m.Get(ctx, id)
			}
		}(i)
	}
	wg.Wait()
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("CALYX_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CALYX_TEST_REDIS_ADDR not set")
	}
	r, err := NewRedis(context.Background(), RedisConfig{Addr: addr, TTL: time.Minute})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer r.Close()
	exercise(t, r)
}
