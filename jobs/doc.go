// Package jobs tracks fire-and-forget background operations by opaque id,
// decoupling completion-waiting from connection-holding: callers start a job,
// get a handle back immediately and poll its status independently.
package jobs
