package lock

import (
	"context"
	"encoding/xml"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agiledragon/gomonkey/v2"
	"github.com/stretchr/testify/assert"
	"github.com/xiaoxuxiansheng/gowfs/feature"
	"github.com/xiaoxuxiansheng/gowfs/featurestore"
	"github.com/xiaoxuxiansheng/gowfs/filter"
	"github.com/xiaoxuxiansheng/gowfs/ows"
	"github.com/xiaoxuxiansheng/redis_lock"
	"go.uber.org/goleak"
)

type mockQuerier struct {
	features []*feature.Feature
}

func (m *mockQuerier) Query(ctx context.Context, q featurestore.Query) ([]*feature.Feature, error) {
	var out []*feature.Feature
	for _, f := range m.features {
		ok, err := featurestore.Matches(q.Filter, f)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func newMockQuerier(ids ...string) *mockQuerier {
	q := &mockQuerier{}
	for _, id := range ids {
		q.features = append(q.features, &feature.Feature{ID: id, Type: xml.Name{Local: "Road"}})
	}
	return q
}

func idQuery(ids ...string) []featurestore.Query {
	return []featurestore.Query{{TypeName: xml.Name{Local: "Road"}, Filter: &filter.IDFilter{IDs: ids}}}
}

func collect(cursor featurestore.IDCursor, err error) []string {
	if err != nil {
		return nil
	}
	defer cursor.Close()
	var ids []string
	for cursor.Next() {
		ids = append(ids, cursor.ID())
	}
	return ids
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func Test_Manager_acquire(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	c := &clock{now: time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)}
	m := NewManager(newMockQuerier("r1", "r2", "r3"), WithClock(c.Now))
	defer m.Close()

	tests := []struct {
		name string
		f    func()
	}{
		{
			name: "lock all",
			f: func() {
				lk, err := m.AcquireLock(ctx, idQuery("r1", "r2"), true, time.Minute)
				assert.Equal(t, nil, err)
				assert.Equal(t, 2, lk.NumLocked())
				assert.Equal(t, 0, lk.NumFailedToLock())
				assert.Equal(t, c.now.Add(time.Minute), lk.ExpiresAt())
				assert.Equal(t, []string{"r1", "r2"}, collect(lk.LockedFeatures(ctx)))

				got, err := m.GetLock(ctx, lk.ID())
				assert.Equal(t, nil, err)
				assert.Equal(t, lk.ID(), got.ID())

				locked, err := m.IsFeatureLocked(ctx, "r1", "")
				assert.Equal(t, nil, err)
				assert.Equal(t, true, locked)
				locked, _ = m.IsFeatureLocked(ctx, "r1", lk.ID())
				assert.Equal(t, false, locked)
			},
		},
		{
			name: "lock all conflicts",
			f: func() {
				_, err := m.AcquireLock(ctx, idQuery("r2", "r3"), true, time.Minute)
				assert.Equal(t, true, err != nil)
				assert.Equal(t, ows.CannotLockAllFeatures, ows.CodeOf(err))
			},
		},
		{
			name: "lock some",
			f: func() {
				lk, err := m.AcquireLock(ctx, idQuery("r2", "r3"), false, 0)
				assert.Equal(t, nil, err)
				assert.Equal(t, []string{"r3"}, collect(lk.LockedFeatures(ctx)))
				assert.Equal(t, []string{"r2"}, collect(lk.FailedToLockFeatures(ctx)))
				assert.Equal(t, c.now.Add(5*time.Minute), lk.ExpiresAt())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.f()
		})
	}
}

func Test_Manager_expiry(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	c := &clock{now: time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)}
	m := NewManager(newMockQuerier("r1"), WithClock(c.Now))
	defer m.Close()

	lk, err := m.AcquireLock(ctx, idQuery("r1"), true, time.Minute)
	assert.Equal(t, nil, err)

	// 续期以获取时间为基准
	assert.Equal(t, nil, lk.SetExpiry(ctx, lk.AcquiredAt().Add(10*time.Minute)))
	c.now = c.now.Add(2 * time.Minute)
	_, err = m.GetLock(ctx, lk.ID())
	assert.Equal(t, nil, err)

	c.now = c.now.Add(10 * time.Minute)
	_, err = m.GetLock(ctx, lk.ID())
	assert.Equal(t, ows.LockHasExpired, ows.CodeOf(err))

	// 过期的锁不再阻塞其他请求
	other, err := m.AcquireLock(ctx, idQuery("r1"), true, time.Minute)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, other.NumLocked())

	_, err = m.GetLock(ctx, "unknown")
	p, ok := ows.AsParameterError(err)
	assert.Equal(t, true, ok)
	assert.Equal(t, "lockId", p.Name)
}

func Test_Lock_release(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	m := NewManager(newMockQuerier("r1", "r2"))
	defer m.Close()

	lk, err := m.AcquireLock(ctx, idQuery("r1", "r2"), true, time.Minute)
	assert.Equal(t, nil, err)

	assert.Equal(t, nil, lk.ReleaseFeature(ctx, "r1"))
	assert.Equal(t, false, lk.IsLocked("r1"))
	assert.Equal(t, true, lk.IsLocked("r2"))
	locked, _ := m.IsFeatureLocked(ctx, "r1", "")
	assert.Equal(t, false, locked)

	assert.Equal(t, nil, lk.Release(ctx))
	assert.Equal(t, 0, lk.NumLocked())
	_, err = m.GetLock(ctx, lk.ID())
	assert.Equal(t, ows.InvalidParameterValue, ows.CodeOf(err))
}

func Test_Manager_redis(t *testing.T) {
	defer goleak.VerifyNone(t)

	var (
		mux     sync.Mutex
		store   = make(map[string]string)
		guarded int
	)
	patch := gomonkey.ApplyMethod(reflect.TypeOf(&redis_lock.RedisLock{}), "Lock", func(_ *redis_lock.RedisLock, ctx context.Context) error {
		guarded++
		return nil
	})
	defer patch.Reset()
	patch = patch.ApplyMethod(reflect.TypeOf(&redis_lock.RedisLock{}), "Unlock", func(_ *redis_lock.RedisLock, ctx context.Context) error {
		return nil
	})
	patch = patch.ApplyMethod(reflect.TypeOf(&redis_lock.Client{}), "Get", func(_ *redis_lock.Client, ctx context.Context, key string) (string, error) {
		mux.Lock()
		defer mux.Unlock()
		v, ok := store[key]
		if !ok {
			return "", redis_lock.ErrNil
		}
		return v, nil
	})
	patch = patch.ApplyMethod(reflect.TypeOf(&redis_lock.Client{}), "Set", func(_ *redis_lock.Client, ctx context.Context, key string, value string) (int64, error) {
		mux.Lock()
		defer mux.Unlock()
		store[key] = value
		return 1, nil
	})
	patch = patch.ApplyMethod(reflect.TypeOf(&redis_lock.Client{}), "Del", func(_ *redis_lock.Client, ctx context.Context, key string) error {
		mux.Lock()
		defer mux.Unlock()
		delete(store, key)
		return nil
	})

	ctx := context.Background()
	m := NewManager(newMockQuerier("r1", "r2"), WithRedisClient(&redis_lock.Client{}))
	defer m.Close()

	lk, err := m.AcquireLock(ctx, idQuery("r1"), true, time.Minute)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, guarded)
	assert.Equal(t, true, strings.HasPrefix(store["gowfs:lock:feature:r1"], lk.ID()+"|"))

	// 另一个实例写入的归属
	store["gowfs:lock:feature:r2"] = formatOwner("remote", time.Now().Add(time.Hour))
	_, err = m.AcquireLock(ctx, idQuery("r2"), true, time.Minute)
	assert.Equal(t, ows.CannotLockAllFeatures, ows.CodeOf(err))

	// 已过期的远端归属视为空闲
	store["gowfs:lock:feature:r2"] = formatOwner("remote", time.Now().Add(-time.Hour))
	_, err = m.AcquireLock(ctx, idQuery("r2"), true, time.Minute)
	assert.Equal(t, nil, err)

	assert.Equal(t, nil, lk.Release(ctx))
	_, ok := store["gowfs:lock:feature:r1"]
	assert.Equal(t, false, ok)
}
