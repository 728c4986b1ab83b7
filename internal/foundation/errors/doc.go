// Package errors provides classified errors for the documentation pipeline.
//
// Errors carry a category (analysis, render, io, config, ...), a severity,
// and a retry strategy. The generation scheduler consults the retry strategy
// at the job boundary to decide between backoff re-enqueue and terminal
// failure; everything else only ever observes health status and last-error
// strings, never raw error values.
package errors
