// Package retry classifies provider failures and computes retry backoff
// for notification deliveries.
//
// Classification is code-based: a small set of transient provider codes
// (plus DEVICE_NOT_REGISTERED for push) is retryable, anything else is a
// permanent failure. The delay curve is exponential per attempt and capped
// per channel:
//
//	delay = base * 2^retryCount, capped at the channel ceiling
//
// Calculate is pure and deterministic: the same (record, code) input always
// yields the same strategy, and there is no jitter. Determinism is part of
// the contract — the engine only decides, an external scheduler re-invokes
// it after the delay.
package retry
