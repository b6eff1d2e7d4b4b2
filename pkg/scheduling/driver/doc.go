// Package driver advances a schedule over time.
//
// A Schedule never initiates work. A Driver owns one, together with a
// dispatch pool and a reap sink, and on every tick it:
//
//  1. applies kills arranged with KillAfter,
//  2. ages low-ready with Promote,
//  3. dispatches one process when a worker is free, from high-ready first,
//  4. reaps the defunct queue into the sink every ReapEvery ticks.
//
// Completed runs are reported back with Exited, so their processes become
// defunct and are reaped on a later tick.
//
// Ticks come from a time.Ticker, or from a cron expression when Config.Cron
// is set:
//
//	d, err := driver.NewWithConfig(driver.Config{
//		Schedule: opsched.Config{MaxAge: 3},
//		Cron:     "*/2 * * * * *",
//	})
//	if err != nil {
//		return err
//	}
//	pid, _ := d.Submit("make test", false, true)
//	_ = d.Start()
//	defer func() { <-d.Stop() }()
//
// Tests and simulations can skip Start and call Tick directly.
//
// Every call into the schedule is made under the driver's mutex, so a Driver
// is safe for concurrent use.
package driver
