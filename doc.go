// Package shutdown coordinates graceful shutdown across a tree of
// cooperating goroutines, called subsystems.
//
// A program builds a Toplevel, starts its top-level subsystems from the
// SubsystemHandle the Toplevel hands to its init closure, and each
// subsystem may itself start further children from the handle it receives.
// Shutdown signals propagate down the resulting tree, completion and errors
// propagate up, and Toplevel.HandleShutdownRequests collects the whole tree
// within a deadline, aggregating every failure and timeout by subsystem
// path.
//
//	tl := shutdown.NewToplevel(func(s *shutdown.SubsystemHandle) {
//		s.Start(shutdown.NewSubsystem("server", runServer))
//		s.Start(shutdown.NewSubsystem("worker", runWorker, shutdown.WithShutdownOnFinish()))
//	})
//	tl.CatchSignals()
//	if err := tl.HandleShutdownRequests(context.Background(), 30*time.Second); err != nil {
//		log.Fatal(err)
//	}
//
// Subsystems react to shutdown cooperatively, most often by racing their own
// work against SubsystemHandle.OnShutdownRequested in a select:
//
//	func runServer(ctx context.Context, s *shutdown.SubsystemHandle) error {
//		srv := &http.Server{Addr: ":8080"}
//		errCh := make(chan error, 1)
//		go func() { errCh <- srv.ListenAndServe() }()
//		select {
//		case err := <-errCh:
//			return err
//		case <-s.OnShutdownRequested():
//			return srv.Shutdown(context.Background())
//		}
//	}
//
// A subsystem started with shutdown.WithDetached() is cut off from
// escalation: its failure never triggers its parent's shutdown, and surfaces
// only through SubsystemHandle.InitiatePartialShutdown or through a nested
// Toplevel created with SubsystemHandle.NewNestedToplevel. This is the
// mechanism for a bounded part of the program to fail, or be torn down on
// its own, without bringing the rest of the tree down with it.
//
// The package never force-kills a subsystem's goroutine; shutdown is
// cooperative throughout. Subsystems still running when the deadline passed
// to HandleShutdownRequests elapses are reported as timed out, but the
// goroutines themselves are left running - their eventual completion is the
// host program's concern, not this package's.
package shutdown
