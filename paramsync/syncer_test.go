package paramsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	json "github.com/goccy/go-json"
	"github.com/kroma-labs/readhedge/params"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey     = "test:parameters"
	testChannel = "test:parameters:changes"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func newStore(t *testing.T) *params.Store {
	t.Helper()
	s, err := params.NewStore()
	require.NoError(t, err)
	return s
}

// runSyncer starts s.Run and waits until its subscription is registered.
func runSyncer(t *testing.T, rdb redis.UniversalClient, s *Syncer, subscribers int64) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	require.Eventually(t, func() bool {
		counts, err := rdb.PubSubNumSub(context.Background(), testChannel).Result()
		return err == nil && counts[testChannel] >= subscribers
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSyncer_PublishesLocalChanges(t *testing.T) {
	ctx := context.Background()
	_, rdb := setupRedis(t)
	// Another router already turned hedging off fleet-wide.
	require.NoError(t, rdb.HSet(ctx, testKey,
		params.ReadHedgingMode, "off",
		params.MaxTimeMSForHedgedReads, "10",
		"version", "3",
	).Err())

	store := newStore(t)
	New(rdb, store, WithKeyPrefix("test"), WithOrigin("router-a"))

	sub := rdb.Subscribe(ctx, testChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, params.MaxTimeMSForHedgedReads, 100))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got Message
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, "router-a", got.Origin)
	assert.Equal(t, []string{params.MaxTimeMSForHedgedReads}, got.Parameters)

	stored, err := rdb.HGetAll(ctx, testKey).Result()
	require.NoError(t, err)
	assert.Equal(t, "off", stored[params.ReadHedgingMode], "untouched fields are left as the fleet set them")
	assert.Equal(t, "100", stored[params.MaxTimeMSForHedgedReads])
	assert.Equal(t, "4", stored["version"])
	assert.Equal(t, "router-a", stored["origin"])
}

func TestSyncer_PropagatesBetweenProcesses(t *testing.T) {
	ctx := context.Background()
	_, rdb := setupRedis(t)

	storeA := newStore(t)
	storeB := newStore(t)
	syncA := New(rdb, storeA, WithKeyPrefix("test"), WithOrigin("router-a"))
	syncB := New(rdb, storeB, WithKeyPrefix("test"), WithOrigin("router-b"))

	runSyncer(t, rdb, syncA, 1)
	runSyncer(t, rdb, syncB, 2)

	require.NoError(t, storeA.Set(ctx, params.ReadHedgingMode, "off"))

	require.Eventually(t, func() bool {
		return storeB.Snapshot().ReadHedgingMode == params.HedgingOff
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, storeA.Set(ctx, params.MaxTimeMSForHedgedReads, 45))
	want := params.Snapshot{ReadHedgingMode: params.HedgingOff, MaxTimeMSForHedgedReads: 45}
	require.Eventually(t, func() bool {
		return storeB.Snapshot() == want
	}, 2*time.Second, 10*time.Millisecond)

	// B must not echo what it received.
	assert.Equal(t, want, storeA.Snapshot())
	stored, err := rdb.HGetAll(ctx, testKey).Result()
	require.NoError(t, err)
	assert.Equal(t, "router-a", stored["origin"])
	assert.Equal(t, "2", stored["version"])
}

func TestSyncer_ConcurrentChangesConverge(t *testing.T) {
	ctx := context.Background()
	_, rdb := setupRedis(t)

	storeA := newStore(t)
	storeB := newStore(t)
	runSyncer(t, rdb, New(rdb, storeA, WithKeyPrefix("test"), WithOrigin("router-a")), 1)
	runSyncer(t, rdb, New(rdb, storeB, WithKeyPrefix("test"), WithOrigin("router-b")), 2)

	for i := 0; i < 20; i++ {
		mode := params.HedgingOff
		if i%2 == 1 {
			mode = params.HedgingOn
		}
		ms := 100 + i

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, storeA.Set(ctx, params.ReadHedgingMode, mode))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, storeB.Set(ctx, params.MaxTimeMSForHedgedReads, ms))
		}()
		wg.Wait()

		want := params.Snapshot{ReadHedgingMode: mode, MaxTimeMSForHedgedReads: ms}
		require.Eventually(t, func() bool {
			return storeA.Snapshot() == want && storeB.Snapshot() == want
		}, 2*time.Second, 5*time.Millisecond,
			"round %d: A=%v B=%v want %v", i, storeA.Snapshot(), storeB.Snapshot(), want)
	}
}

func TestSyncer_ReconcilesAfterRedisRestart(t *testing.T) {
	ctx := context.Background()
	mr, rdb := setupRedis(t)
	store := newStore(t)
	s := New(rdb, store,
		WithKeyPrefix("test"),
		WithOrigin("router-a"),
		WithResubscribeBackoff(10*time.Millisecond, 50*time.Millisecond),
	)
	runSyncer(t, rdb, s, 1)

	require.NoError(t, store.Set(ctx, params.MaxTimeMSForHedgedReads, 50))
	assert.Equal(t, "50", mr.HGet(testKey, params.MaxTimeMSForHedgedReads))

	mr.Close()

	require.NoError(t, store.Set(ctx, params.MaxTimeMSForHedgedReads, 77))
	assert.Equal(t, []string{params.MaxTimeMSForHedgedReads}, s.Pending())

	// Another router turned hedging off while this one was cut off.
	mr.HSet(testKey, params.ReadHedgingMode, "off")
	mr.HSet(testKey, "version", "40")

	require.NoError(t, mr.Restart())

	want := params.Snapshot{ReadHedgingMode: params.HedgingOff, MaxTimeMSForHedgedReads: 77}
	require.Eventually(t, func() bool {
		return store.Snapshot() == want &&
			mr.HGet(testKey, params.MaxTimeMSForHedgedReads) == "77"
	}, 3*time.Second, 10*time.Millisecond)
	assert.Empty(t, s.Pending())
	assert.Equal(t, "off", mr.HGet(testKey, params.ReadHedgingMode))
	assert.Equal(t, "41", mr.HGet(testKey, "version"))
}

func TestSyncer_LoadsStoredParametersOnSubscribe(t *testing.T) {
	ctx := context.Background()
	_, rdb := setupRedis(t)
	require.NoError(t, rdb.HSet(ctx, testKey,
		params.ReadHedgingMode, "off",
		params.MaxTimeMSForHedgedReads, "250",
		"origin", "router-z",
	).Err())

	store := newStore(t)
	s := New(rdb, store, WithKeyPrefix("test"))
	runSyncer(t, rdb, s, 1)

	require.Eventually(t, func() bool {
		return store.Snapshot() == params.Snapshot{ReadHedgingMode: params.HedgingOff, MaxTimeMSForHedgedReads: 250}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSyncer_Load(t *testing.T) {
	type args struct {
		fields []any
	}

	tests := []struct {
		name    string
		args    args
		want    params.Parameters
		wantErr assert.ErrorAssertionFunc
	}{
		{
			name:    "given no stored hash, then store keeps defaults",
			want:    params.DefaultParameters(),
			wantErr: assert.NoError,
		},
		{
			name: "given valid hash, then applies it",
			args: args{fields: []any{
				params.ReadHedgingMode, "on",
				params.MaxTimeMSForHedgedReads, "30",
			}},
			want:    params.Parameters{ReadHedgingMode: params.HedgingOn, MaxTimeMSForHedgedReads: 30},
			wantErr: assert.NoError,
		},
		{
			name: "given negative budget, then rejects and keeps defaults",
			args: args{fields: []any{
				params.ReadHedgingMode, "on",
				params.MaxTimeMSForHedgedReads, "-4",
			}},
			want:    params.DefaultParameters(),
			wantErr: assert.Error,
		},
		{
			name: "given missing mode, then rejects and keeps defaults",
			args: args{fields: []any{
				params.MaxTimeMSForHedgedReads, "30",
			}},
			want:    params.DefaultParameters(),
			wantErr: assert.Error,
		},
		{
			name: "given non-numeric version, then rejects and keeps defaults",
			args: args{fields: []any{
				params.ReadHedgingMode, "off",
				params.MaxTimeMSForHedgedReads, "30",
				"version", "latest",
			}},
			want:    params.DefaultParameters(),
			wantErr: assert.Error,
		},
		{
			name: "given non-numeric budget, then rejects and keeps defaults",
			args: args{fields: []any{
				params.ReadHedgingMode, "off",
				params.MaxTimeMSForHedgedReads, "soon",
			}},
			want:    params.DefaultParameters(),
			wantErr: assert.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			_, rdb := setupRedis(t)
			if len(tt.args.fields) > 0 {
				require.NoError(t, rdb.HSet(ctx, testKey, tt.args.fields...).Err())
			}

			store := newStore(t)
			s := New(rdb, store, WithKeyPrefix("test"))

			tt.wantErr(t, s.Load(ctx))
			assert.Equal(t, tt.want, store.Parameters())
		})
	}
}

func TestSyncer_LoadAppliesOnlyNewerVersions(t *testing.T) {
	ctx := context.Background()
	_, rdb := setupRedis(t)
	store := newStore(t)
	s := New(rdb, store, WithKeyPrefix("test"))

	write := func(mode, ms, version string) {
		require.NoError(t, rdb.HSet(ctx, testKey,
			params.ReadHedgingMode, mode,
			params.MaxTimeMSForHedgedReads, ms,
			"version", version,
		).Err())
	}

	write("off", "30", "5")
	require.NoError(t, s.Load(ctx))
	assert.Equal(t, params.Parameters{ReadHedgingMode: params.HedgingOff, MaxTimeMSForHedgedReads: 30}, store.Parameters())

	write("on", "40", "5")
	require.NoError(t, s.Load(ctx))
	assert.Equal(t, params.Parameters{ReadHedgingMode: params.HedgingOff, MaxTimeMSForHedgedReads: 30}, store.Parameters(),
		"same version is not reapplied")

	write("on", "40", "6")
	require.NoError(t, s.Load(ctx))
	assert.Equal(t, params.Parameters{ReadHedgingMode: params.HedgingOn, MaxTimeMSForHedgedReads: 40}, store.Parameters())
}

func TestSyncer_IgnoresBadAnnouncements(t *testing.T) {
	ctx := context.Background()
	_, rdb := setupRedis(t)
	store := newStore(t)
	s := New(rdb, store, WithKeyPrefix("test"), WithOrigin("router-a"))
	runSyncer(t, rdb, s, 1)

	publish := func(payload string) {
		require.NoError(t, rdb.Publish(ctx, testChannel, payload).Err())
	}

	require.NoError(t, rdb.HSet(ctx, testKey,
		params.ReadHedgingMode, "off",
		params.MaxTimeMSForHedgedReads, "77",
		"version", "1",
	).Err())

	publish(`not json`)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, params.DefaultParameters(), store.Parameters(), "malformed announcements do not trigger a reload")

	publish(`{"origin":"router-b","parameters":["maxTimeMSForHedgedReads"]}`)
	want := params.Snapshot{ReadHedgingMode: params.HedgingOff, MaxTimeMSForHedgedReads: 77}
	require.Eventually(t, func() bool {
		return store.Snapshot() == want
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, rdb.HSet(ctx, testKey,
		params.ReadHedgingMode, "sideways",
		"version", "2",
	).Err())
	publish(`{"origin":"router-b","parameters":["readHedgingMode"]}`)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, want, store.Snapshot(), "invalid stored values are not applied")
}

func TestSyncer_PublishBreaker(t *testing.T) {
	ctx := context.Background()
	mr, rdb := setupRedis(t)
	store := newStore(t)
	s := New(rdb, store, WithKeyPrefix("test"), WithBreaker(2, time.Minute))

	require.NoError(t, s.Publish(ctx, params.DefaultParameters()))

	mr.Close()

	p := params.Parameters{ReadHedgingMode: params.HedgingOff, MaxTimeMSForHedgedReads: 1}
	require.Error(t, s.Publish(ctx, p))
	require.Error(t, s.Publish(ctx, p))

	err := s.Publish(ctx, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ElementsMatch(t, params.Names(), s.Pending())
}

func TestSyncer_PublishValidates(t *testing.T) {
	_, rdb := setupRedis(t)
	s := New(rdb, newStore(t), WithKeyPrefix("test"))

	err := s.Publish(context.Background(), params.Parameters{ReadHedgingMode: "maybe"})
	assert.ErrorIs(t, err, params.ErrValidation)
}

func TestSyncer_Ping(t *testing.T) {
	mr, rdb := setupRedis(t)
	s := New(rdb, newStore(t))

	assert.NoError(t, s.Ping(context.Background()))
	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}

func TestDefaultConfig(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()

	assert.Equal(t, "readhedge:parameters", a.Key)
	assert.Equal(t, "readhedge:parameters:changes", a.Channel)
	assert.NotEmpty(t, a.Origin)
	assert.NotEqual(t, a.Origin, b.Origin)
	assert.Equal(t, uint32(5), a.BreakerConsecutiveFailures)
}
