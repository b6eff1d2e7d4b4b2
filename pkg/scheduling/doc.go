/*
Package scheduling groups the scheduler core and the components that drive it.

  - opsched: three-queue schedule with Admit, SelectHigh, SelectLow, Promote,
    Exited, Terminated, Reap and Destroy
  - dispatch: runs selected processes on a fixed worker pool
  - driver: advances a schedule on a ticker or cron expression

Schedule:

	s, _ := opsched.New()
	defer s.Destroy()

	p, _ := opsched.NewProcess("backup", 1, true, false)
	_ = s.Admit(p)

	for i := 0; i < opsched.DefaultMaxAge; i++ {
		_ = s.Promote()
	}
	p, _ = s.SelectHigh() // promoted into high-ready

Driver:

	d, _ := driver.NewWithConfig(driver.Config{Tick: 100 * time.Millisecond})
	_, _ = d.Submit("make build", false, true)
	_ = d.Start()
	defer func() { <-d.Stop() }()

A Schedule is not safe for concurrent use; a Driver serializes every call
into the schedule it owns.
*/
package scheduling
