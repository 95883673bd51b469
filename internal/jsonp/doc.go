// Package jsonp performs one-shot fetches against callback-style endpoints
// and races each transfer against a deadline. Every call owns a unique
// callback identifier and resolves exactly once: either the endpoint invokes
// that identifier before the deadline and the success handler runs with the
// payload, or the deadline elapses and the timeout handler runs. Late or
// stale responses are dropped.
package jsonp
