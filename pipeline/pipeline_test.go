package pipeline

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/ambrystore/frontend/accountdir"
	"github.com/ambrystore/frontend/clock"
	"github.com/ambrystore/frontend/cmn"
	"github.com/ambrystore/frontend/router"
)

func v1BlobID(partitionID string) string {
	return cmn.EncodeBlobID(cmn.BlobID{Version: cmn.BlobIDVersion1, PartitionID: partitionID})
}

func newTestPipeline(rt ReplicaRouter, dir accountdir.Directory) *Pipeline {
	if dir == nil {
		dir = accountdir.NewMemDirectory()
	}
	return New(rt, dir, nil, nil, nil, clock.NewFake(time.Unix(1000, 0)))
}

func TestPipelineDeleteSuccess(t *testing.T) {
	p := newTestPipeline(&fakeRouter{deleteErr: nil}, nil)
	req := &Request{Method: MethodDelete, BlobIDString: v1BlobID("part-1"), Headers: http.Header{}}
	resp := newFakeResponseChannel()
	p.Handle(req, resp)
	resp.wait()

	if resp.status != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.status)
	}
	if resp.headers.Get("Content-Length") != "0" {
		t.Fatalf("Content-Length = %q, want 0", resp.headers.Get("Content-Length"))
	}
}

func TestPipelineDeleteGone(t *testing.T) {
	p := newTestPipeline(&fakeRouter{deleteErr: cmn.NewRouterError(cmn.ErrBlobDeleted, "deleted")}, nil)
	req := &Request{Method: MethodDelete, BlobIDString: v1BlobID("part-1"), Headers: http.Header{}}
	resp := newFakeResponseChannel()
	p.Handle(req, resp)
	resp.wait()

	if resp.status != http.StatusGone {
		t.Fatalf("status = %d, want 410", resp.status)
	}
	if resp.headers.Get("x-ambry-deleted") != "true" {
		t.Fatalf("missing x-ambry-deleted header")
	}
}

func TestPipelineDeleteInvalidBlobID(t *testing.T) {
	p := newTestPipeline(&fakeRouter{}, nil)
	req := &Request{Method: MethodDelete, BlobIDString: "not-a-valid-id!!", Headers: http.Header{}}
	resp := newFakeResponseChannel()
	p.Handle(req, resp)
	resp.wait()

	if resp.status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.status)
	}
	if resp.headers.Get("x-ambry-error-code") != string(cmn.ErrBadRequest) {
		t.Fatalf("error-code = %q", resp.headers.Get("x-ambry-error-code"))
	}
}

func TestPipelineGetReturnsBody(t *testing.T) {
	body := io.NopCloser(bytes.NewReader([]byte("hello world")))
	props := cmn.BlobProperties{Size: 11, ContentType: "text/plain", CreationTime: time.Unix(500, 0)}
	rt := &fakeRouter{getOutcome: router.GetOutcome{Result: &router.GetResult{Properties: props, Body: body}}}
	p := newTestPipeline(rt, nil)

	req := &Request{Method: MethodGet, BlobIDString: v1BlobID("part-1"), Headers: http.Header{}, RangeStart: -1, RangeEnd: -1}
	resp := newFakeResponseChannel()
	p.Handle(req, resp)
	resp.wait()

	if resp.status != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.status)
	}
	got, _ := io.ReadAll(resp.body)
	if string(got) != "hello world" {
		t.Fatalf("body = %q", got)
	}
	if resp.headers.Get("x-ambry-content-type") != "text/plain" {
		t.Fatalf("missing content-type header")
	}
}

func TestPipelineGetRangeReturnsPartialContent(t *testing.T) {
	body := io.NopCloser(bytes.NewReader([]byte("0123456789")))
	props := cmn.BlobProperties{Size: 10, CreationTime: time.Unix(500, 0)}
	rt := &fakeRouter{getOutcome: router.GetOutcome{Result: &router.GetResult{Properties: props, Body: body}}}
	p := newTestPipeline(rt, nil)

	req := &Request{Method: MethodGet, BlobIDString: v1BlobID("part-1"), Headers: http.Header{}, RangeStart: 2, RangeEnd: 5}
	resp := newFakeResponseChannel()
	p.Handle(req, resp)
	resp.wait()

	if resp.status != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", resp.status)
	}
	if resp.headers.Get("Content-Range") != "bytes 2-5/10" {
		t.Fatalf("Content-Range = %q", resp.headers.Get("Content-Range"))
	}
}

func TestPipelineGetNotModified(t *testing.T) {
	body := io.NopCloser(bytes.NewReader([]byte("stale")))
	created := time.Unix(100, 0)
	props := cmn.BlobProperties{Size: 5, CreationTime: created}
	rt := &fakeRouter{getOutcome: router.GetOutcome{Result: &router.GetResult{Properties: props, Body: body}}}
	p := newTestPipeline(rt, nil)

	req := &Request{
		Method: MethodGet, BlobIDString: v1BlobID("part-1"), Headers: http.Header{},
		RangeStart: -1, RangeEnd: -1, IfModifiedSince: created.Add(time.Second),
	}
	resp := newFakeResponseChannel()
	p.Handle(req, resp)
	resp.wait()

	if resp.status != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", resp.status)
	}
	if resp.body != nil {
		t.Fatalf("expected no body on 304")
	}
}

func TestPipelinePostSucceedsWithDefaultUnknownInjection(t *testing.T) {
	rt := &fakeRouter{putOutcome: router.PutOutcome{Result: &router.PutResult{BlobIDString: "minted-id"}}}
	p := newTestPipeline(rt, nil)

	req := &Request{
		Method: MethodPost, Headers: http.Header{}, Body: io.NopCloser(bytes.NewReader([]byte("abc"))),
		ContentLength: 3, ServiceID: "some-unregistered-service", ContentType: "application/octet-stream", TTLSeconds: -1,
	}
	resp := newFakeResponseChannel()
	p.Handle(req, resp)
	resp.wait()

	if resp.status != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.status)
	}
	if resp.headers.Get("Location") != "minted-id" {
		t.Fatalf("Location = %q", resp.headers.Get("Location"))
	}
}

func TestPipelinePostRealAccountRealContainer(t *testing.T) {
	dir := accountdir.NewMemDirectory()
	acct := cmn.Account{ID: 7, Name: "acme", Status: cmn.AccountActive}
	cont := cmn.Container{ID: 3, Name: "widgets", ParentID: 7, Status: cmn.ContainerActive}
	dir.Update([]accountdir.AccountRecord{{Account: acct, Containers: []cmn.Container{cont}}})

	var capturedAcct cmn.Account
	var capturedCont cmn.Container
	rt := &capturingRouter{
		fakeRouter: fakeRouter{putOutcome: router.PutOutcome{Result: &router.PutResult{BlobIDString: "id2"}}},
		onPut: func(props cmn.BlobProperties) {
			capturedAcct = cmn.Account{ID: props.AccountID}
			capturedCont = cmn.Container{ID: props.ContainerID}
		},
	}
	p := newTestPipeline(rt, dir)

	acctName := "acme"
	contName := "widgets"
	req := &Request{
		Method: MethodPost, Headers: http.Header{}, Body: io.NopCloser(bytes.NewReader(nil)),
		ServiceID: "acme", ContentType: "x", TTLSeconds: -1,
		TargetAccount: &acctName, TargetContainer: &contName,
	}
	resp := newFakeResponseChannel()
	p.Handle(req, resp)
	resp.wait()

	if resp.status != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.status)
	}
	if capturedAcct.ID != acct.ID || capturedCont.ID != cont.ID {
		t.Fatalf("account/container not injected correctly: got acct=%d cont=%d", capturedAcct.ID, capturedCont.ID)
	}
}

func TestPipelinePostTargetContainerWithoutAccountFails(t *testing.T) {
	p := newTestPipeline(&fakeRouter{}, nil)
	contName := "widgets"
	req := &Request{
		Method: MethodPost, Headers: http.Header{}, Body: io.NopCloser(bytes.NewReader(nil)),
		ServiceID: "x", ContentType: "x", TTLSeconds: -1, TargetContainer: &contName,
	}
	resp := newFakeResponseChannel()
	p.Handle(req, resp)
	resp.wait()

	if resp.status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.status)
	}
	if resp.headers.Get("x-ambry-error-code") != string(cmn.ErrMissingArgs) {
		t.Fatalf("error-code = %q, want MissingArgs", resp.headers.Get("x-ambry-error-code"))
	}
}

func TestPipelinePostInternalArgKeysRejected(t *testing.T) {
	p := newTestPipeline(&fakeRouter{}, nil)
	headers := http.Header{}
	headers.Set(ArgTargetAccount, "sneaky")
	req := &Request{
		Method: MethodPost, Headers: headers, Body: io.NopCloser(bytes.NewReader(nil)),
		ServiceID: "x", ContentType: "x", TTLSeconds: -1,
	}
	resp := newFakeResponseChannel()
	p.Handle(req, resp)
	resp.wait()

	if resp.status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.status)
	}
}

func TestPipelineHandleNilRequestRejected(t *testing.T) {
	p := newTestPipeline(&fakeRouter{}, nil)
	resp := newFakeResponseChannel()
	p.Handle(nil, resp)
	resp.wait()

	if resp.status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.status)
	}
	if resp.headers.Get("x-ambry-error-code") != string(cmn.ErrInvalidArgument) {
		t.Fatalf("error-code = %q, want InvalidArgument", resp.headers.Get("x-ambry-error-code"))
	}
}

func TestPipelineHandleAfterStopRejected(t *testing.T) {
	p := newTestPipeline(&fakeRouter{}, nil)
	p.Stop()

	req := &Request{Method: MethodDelete, BlobIDString: v1BlobID("part-1"), Headers: http.Header{}}
	resp := newFakeResponseChannel()
	p.Handle(req, resp)
	resp.wait()

	if resp.status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.status)
	}
	if resp.headers.Get("x-ambry-error-code") != string(cmn.ErrServiceUnavailable) {
		t.Fatalf("error-code = %q, want ServiceUnavailable", resp.headers.Get("x-ambry-error-code"))
	}
}

func TestPipelineHandleNilResponseChannelDoesNotPanic(t *testing.T) {
	p := newTestPipeline(&fakeRouter{}, nil)
	req := &Request{Method: MethodDelete, BlobIDString: v1BlobID("part-1"), Headers: http.Header{}}

	p.Handle(req, nil) // must not panic
}

// panicResponseChannel simulates a caller whose Complete implementation
// can no longer accept a result (e.g. its own channel already closed),
// so Pipeline must fall back to completing a second time rather than
// dropping the outcome.
type panicResponseChannel struct {
	fakeResponseChannel
	panicked bool
}

func (f *panicResponseChannel) Complete(status int, headers http.Header, body io.ReadCloser, err error) {
	if !f.panicked {
		f.panicked = true
		panic("response channel unavailable")
	}
	f.fakeResponseChannel.Complete(status, headers, body, err)
}

func TestPipelineSubmissionFallsBackAfterPanic(t *testing.T) {
	p := newTestPipeline(&fakeRouter{deleteErr: nil}, nil)
	req := &Request{Method: MethodDelete, BlobIDString: v1BlobID("part-1"), Headers: http.Header{}}
	resp := &panicResponseChannel{fakeResponseChannel: *newFakeResponseChannel()}
	p.Handle(req, resp)
	resp.wait()

	if !resp.panicked {
		t.Fatal("expected the first Complete attempt to panic")
	}
	if resp.status != http.StatusServiceUnavailable {
		t.Fatalf("fallback status = %d, want 503", resp.status)
	}
}

// capturingRouter wraps fakeRouter to let a test observe the
// BlobProperties a POST assembled before handing it to the router.
type capturingRouter struct {
	fakeRouter
	onPut func(props cmn.BlobProperties)
}

func (c *capturingRouter) Put(properties cmn.BlobProperties, userMetadata []byte, body io.Reader) <-chan router.PutOutcome {
	if c.onPut != nil {
		c.onPut(properties)
	}
	return c.fakeRouter.Put(properties, userMetadata, body)
}
