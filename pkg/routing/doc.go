// Package routing decides whether a notification should be handed to the
// sender now or parked with a scheduled time.
//
// The decision order is fixed, first match wins:
//
//  1. a future ScheduledAt defers the record and echoes that time,
//  2. high/urgent priority sends immediately (deliberate escalation that
//     bypasses quiet hours and rate limiting),
//  3. tenant quiet hours defer until the next quiet-window end,
//  4. a tripped rate-limit predicate defers by the channel retry backoff,
//  5. otherwise send now.
//
// Quiet hours are evaluated at hour granularity in the tenant's timezone;
// a window with start > end wraps across midnight. The engine is a pure
// decision function over the caller-supplied "now" — re-invoking it after a
// deferral is the job of an external scheduler.
package routing
