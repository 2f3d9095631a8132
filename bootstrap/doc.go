// Package bootstrap runs one nwave invocation with a uniform lifecycle:
// start registered components, run the task under signal-aware
// cancellation, print a summary and shut everything down in reverse order.
//
//	app, err := bootstrap.NewApp(cfg)
//	if err != nil {
//		return err
//	}
//	_ = app.RegisterComponent(sched)
//	err = app.RunTask(ctx, func(ctx context.Context) error {
//		return drain(ctx, sched, app.Summary)
//	})
package bootstrap
