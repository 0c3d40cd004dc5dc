// Package validation performs pre-flight business-rule checks on a
// notification record before it enters the delivery pipeline.
//
// The outcome is a structured Result rather than an error: rule violations
// accumulate as Errors (which block processing) and Warnings (performance
// hints that never block). The check is pure; the reference time is
// supplied by the caller:
//
//	res := validation.Validate(rec, time.Now())
//	if !res.Valid {
//	    // res.Errors names every violated rule, including the offending
//	    // recipient token
//	}
package validation
