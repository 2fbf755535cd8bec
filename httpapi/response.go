// Package httpapi is the wire-level HTTP surface (§6): it parses REST
// requests into pipeline.Request values, hands them to a pipeline.Pipeline,
// and bridges the pipeline's asynchronous completion back onto the
// net/http handler goroutine that's blocked waiting for it.
package httpapi

import (
	"io"
	"net/http"
)

// responseWaiter is a one-shot pipeline.ResponseChannel that lets the
// synchronous net/http handler goroutine block on the pipeline's
// asynchronous result without the pipeline itself blocking on anything.
type responseWaiter struct {
	done    chan struct{}
	status  int
	headers http.Header
	body    io.ReadCloser
	err     error
}

func newResponseWaiter() *responseWaiter {
	return &responseWaiter{done: make(chan struct{})}
}

func (w *responseWaiter) Complete(status int, headers http.Header, body io.ReadCloser, err error) {
	w.status = status
	w.headers = headers
	w.body = body
	w.err = err
	close(w.done)
}

func (w *responseWaiter) wait() {
	<-w.done
}
