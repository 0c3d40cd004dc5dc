// Package dispatcher orchestrates the notification delivery lifecycle:
// validate, route, hand to a channel sender, and apply the resulting state
// transition with compare-and-swap guarded store writes.
//
//	d, err := dispatcher.New(store,
//	    dispatcher.WithSenders(emailSender, smsSender),
//	    dispatcher.WithSettingsProvider(tenantSettings),
//	)
//
//	decision, err := d.Submit(ctx, rec)
//	// decision.ShouldSend == false means the record was parked with a
//	// scheduled time (quiet hours, future schedule, rate limit)
//
// Deferred records are picked up later by DispatchDue, which loads due
// pending records, groups them with the batch optimizer, and dispatches
// batches concurrently under a configurable limit. Re-invoking DispatchDue
// on time is the job of an external scheduler; the dispatcher never sleeps.
//
// The engine retries nothing by itself: a failed send is classified, and a
// retryable failure is requeued as a pending record scheduled at
// now+backoff, charging one retry attempt.
package dispatcher
