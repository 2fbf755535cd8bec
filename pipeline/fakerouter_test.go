package pipeline

import (
	"io"

	"github.com/ambrystore/frontend/cmn"
	"github.com/ambrystore/frontend/router"
)

// fakeRouter is a scripted ReplicaRouter: each call returns whatever the
// test preloaded, with no replica fan-out at all -- Pipeline's own logic
// is what's under test here, not RouterCore's.
type fakeRouter struct {
	deleteErr  error
	getOutcome router.GetOutcome
	putOutcome router.PutOutcome
}

func (f *fakeRouter) Delete(blobIDString string) <-chan error {
	ch := make(chan error, 1)
	ch <- f.deleteErr
	close(ch)
	return ch
}

func (f *fakeRouter) Get(blobIDString string, opt cmn.GetOption, rangeStart, rangeEnd int64) <-chan router.GetOutcome {
	ch := make(chan router.GetOutcome, 1)
	ch <- f.getOutcome
	close(ch)
	return ch
}

func (f *fakeRouter) Put(properties cmn.BlobProperties, userMetadata []byte, body io.Reader) <-chan router.PutOutcome {
	io.Copy(io.Discard, body)
	ch := make(chan router.PutOutcome, 1)
	ch <- f.putOutcome
	close(ch)
	return ch
}
