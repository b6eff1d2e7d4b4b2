package integration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/opsched/internal/testutil"
	"github.com/vnykmshr/opsched/pkg/reaper"
	"github.com/vnykmshr/opsched/pkg/scheduling/dispatch"
	"github.com/vnykmshr/opsched/pkg/scheduling/driver"
	"github.com/vnykmshr/opsched/pkg/scheduling/opsched"
)

// redisClient connects to OPSCHED_REDIS_ADDR or skips the test.
func redisClient(t *testing.T) redis.UniversalClient {
	t.Helper()
	addr := os.Getenv("OPSCHED_REDIS_ADDR")
	if addr == "" {
		t.Skip("OPSCHED_REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis at %s unreachable: %v", addr, err)
	}
	return rdb
}

func uniqueKey(t *testing.T, rdb redis.UniversalClient) string {
	t.Helper()
	key := "opsched:test:" + uuid.NewString()
	t.Cleanup(func() { _ = rdb.Del(context.Background(), key).Err() })
	return key
}

func TestRedisSink_ListIsCapped(t *testing.T) {
	rdb := redisClient(t)
	sink, err := reaper.NewRedisSink(reaper.RedisConfig{Redis: rdb, Key: uniqueKey(t, rdb), MaxLen: 3, KeyTTL: time.Minute})
	testutil.AssertNoError(t, err)

	ctx := context.Background()
	for pid := opsched.PID(1); pid <= 5; pid++ {
		testutil.AssertNoError(t, sink.Record(ctx, reaper.Entry{PID: pid, Command: "x", ExitCode: int(pid)}))
	}

	entries, err := sink.Recent(ctx, 10)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(entries), 3)
	testutil.AssertEqual(t, entries[0].PID, opsched.PID(5))
	testutil.AssertEqual(t, entries[2].PID, opsched.PID(3))

	ttl, err := rdb.PTTL(ctx, sink.Key()).Result()
	testutil.AssertNoError(t, err)
	if ttl <= 0 {
		t.Errorf("expected a ttl, got %v", ttl)
	}
}

func TestRedisSink_Stream(t *testing.T) {
	rdb := redisClient(t)
	sink, err := reaper.NewRedisSink(reaper.RedisConfig{Redis: rdb, Key: uniqueKey(t, rdb), Mode: reaper.ModeStream})
	testutil.AssertNoError(t, err)

	ctx := context.Background()
	testutil.AssertNoError(t, sink.Record(ctx, reaper.Entry{PID: 1, Command: "a"}))
	testutil.AssertNoError(t, sink.Record(ctx, reaper.Entry{PID: 2, Command: "b", ExitCode: 4}))

	entries, err := sink.Recent(ctx, 10)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(entries), 2)
	testutil.AssertEqual(t, entries[0].PID, opsched.PID(2))
	testutil.AssertEqual(t, entries[0].ExitCode, 4)
}

// TestDriverReapsIntoRedis runs a small workload end to end and expects every
// process in Redis exactly once, stamped with the driver instance.
func TestDriverReapsIntoRedis(t *testing.T) {
	rdb := redisClient(t)
	sink, err := reaper.NewRedisSink(reaper.RedisConfig{Redis: rdb, Key: uniqueKey(t, rdb)})
	testutil.AssertNoError(t, err)

	d, err := driver.NewWithConfig(driver.Config{
		Tick:   time.Millisecond,
		Runner: dispatch.Simulated(0),
		Sink:   sink,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	testutil.AssertNoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := d.Submit("job", i%3 == 0, i%3 != 0 && i%4 == 1)
		testutil.AssertNoError(t, err)
	}
	testutil.AssertNoError(t, d.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	testutil.AssertNoError(t, d.Wait(ctx))
	<-d.Stop()

	entries, err := sink.Recent(context.Background(), 100)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(entries), 10)

	seen := make(map[opsched.PID]bool)
	for _, e := range entries {
		testutil.AssertEqual(t, e.Instance, d.Instance())
		if seen[e.PID] {
			t.Fatalf("pid %d recorded twice", e.PID)
		}
		seen[e.PID] = true
	}
}
