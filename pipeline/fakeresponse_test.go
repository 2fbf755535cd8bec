package pipeline

import (
	"io"
	"net/http"
)

// fakeResponseChannel captures a Pipeline's terminal Complete call and
// lets a test block until it arrives.
type fakeResponseChannel struct {
	done    chan struct{}
	status  int
	headers http.Header
	body    io.ReadCloser
	err     error
}

func newFakeResponseChannel() *fakeResponseChannel {
	return &fakeResponseChannel{done: make(chan struct{})}
}

func (f *fakeResponseChannel) Complete(status int, headers http.Header, body io.ReadCloser, err error) {
	f.status = status
	f.headers = headers
	f.body = body
	f.err = err
	close(f.done)
}

func (f *fakeResponseChannel) wait() *fakeResponseChannel {
	<-f.done
	return f
}
