// Package reaper exports the outcome of defunct processes.
//
// A driver reaps a schedule's defunct queue periodically and hands one Entry
// per process to a Sink. LogSink writes a structured log record, RedisSink
// keeps the newest entries in a capped Redis list or stream, and MultiSink
// fans out to several sinks, retrying an entry only on the sinks that have
// not accepted it. WithMetrics counts successes and failures per
// sink.
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	sink, err := reaper.NewRedisSink(reaper.RedisConfig{Redis: rdb, MaxLen: 1000})
//	if err != nil {
//		return err
//	}
//	n, err := sched.Reap(func(p *opsched.Process) error {
//		return sink.Record(ctx, reaper.NewEntry(p, instance, time.Now()))
//	})
//
// Entries are exported, never read back into a schedule.
package reaper
