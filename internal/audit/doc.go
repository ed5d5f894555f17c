// Package audit carries the security-event model and the asynchronous
// dispatcher that forwards events to a configurable sink.
package audit
