// Package async runs background tasks with panic recovery and timeouts.
//
// SafeGo starts one task and logs its error instead of returning it:
//
//	async.SafeGo(ctx, logger, 5*time.Second, "password reset", func(ctx context.Context) error {
//		return notifier.SendPasswordReset(ctx, c, code)
//	})
//
// Group does the same for tasks started from request handlers and lets the
// shutdown sequence wait for those still running.
package async
