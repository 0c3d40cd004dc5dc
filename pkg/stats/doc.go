// Package stats rolls up per-tenant delivery statistics from the store's
// counting primitives.
//
// The aggregator owns no business rules: it composes counts into totals,
// a success rate, and per-status/priority/channel breakdowns. Push and
// webhook records additionally break down by provider platform and URL
// scheme, classified from the stored recipient tokens.
package stats
