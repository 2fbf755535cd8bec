package httpapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ambrystore/frontend/accountdir"
	"github.com/ambrystore/frontend/clock"
	"github.com/ambrystore/frontend/cluster"
	"github.com/ambrystore/frontend/cmn"
	"github.com/ambrystore/frontend/pipeline"
	"github.com/ambrystore/frontend/router"
)

// scriptedRouter is a minimal pipeline.ReplicaRouter fake for exercising
// the HTTP surface end to end without any real replica fan-out.
type scriptedRouter struct {
	deleteErr  error
	getOutcome router.GetOutcome
	putOutcome router.PutOutcome
}

func (s *scriptedRouter) Delete(blobIDString string) <-chan error {
	ch := make(chan error, 1)
	ch <- s.deleteErr
	close(ch)
	return ch
}

func (s *scriptedRouter) Get(blobIDString string, opt cmn.GetOption, rangeStart, rangeEnd int64) <-chan router.GetOutcome {
	ch := make(chan router.GetOutcome, 1)
	ch <- s.getOutcome
	close(ch)
	return ch
}

func (s *scriptedRouter) Put(properties cmn.BlobProperties, userMetadata []byte, body io.Reader) <-chan router.PutOutcome {
	io.Copy(io.Discard, body)
	ch := make(chan router.PutOutcome, 1)
	ch <- s.putOutcome
	close(ch)
	return ch
}

func newTestServer(rt pipeline.ReplicaRouter) *httptest.Server {
	dir := accountdir.NewMemDirectory()
	view := cluster.NewView(0)
	pipe := pipeline.New(rt, dir, view, nil, nil, clock.NewFake(time.Unix(1000, 0)))
	return httptest.NewServer(New(pipe, view, "localhost", 1234))
}

func TestHTTPDeleteReturns202(t *testing.T) {
	srv := newTestServer(&scriptedRouter{})
	defer srv.Close()

	blobID := cmn.EncodeBlobID(cmn.BlobID{Version: cmn.BlobIDVersion1, PartitionID: "part-1"})
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/"+blobID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
}

func TestHTTPGetReturnsBody(t *testing.T) {
	props := cmn.BlobProperties{Size: 5, ContentType: "text/plain", CreationTime: time.Unix(10, 0)}
	body := io.NopCloser(strings.NewReader("howdy"))
	srv := newTestServer(&scriptedRouter{getOutcome: router.GetOutcome{Result: &router.GetResult{Properties: props, Body: body}}})
	defer srv.Close()

	blobID := cmn.EncodeBlobID(cmn.BlobID{Version: cmn.BlobIDVersion1, PartitionID: "part-1"})
	resp, err := http.Get(srv.URL + "/" + blobID)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got, _ := io.ReadAll(resp.Body)
	if string(got) != "howdy" {
		t.Fatalf("body = %q", got)
	}
}

func TestHTTPPutIsUnsupported(t *testing.T) {
	srv := newTestServer(&scriptedRouter{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/anything", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestHTTPPostMissingTTLFails(t *testing.T) {
	srv := newTestServer(&scriptedRouter{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/", strings.NewReader("data"))
	req.Header.Set("x-ambry-service-id", "svc")
	req.Header.Set("x-ambry-content-type", "text/plain")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if resp.Header.Get("x-ambry-error-code") != string(cmn.ErrMissingArgs) {
		t.Fatalf("error-code = %q", resp.Header.Get("x-ambry-error-code"))
	}
}

func TestHTTPPostSucceeds(t *testing.T) {
	srv := newTestServer(&scriptedRouter{putOutcome: router.PutOutcome{Result: &router.PutResult{BlobIDString: "new-blob-id"}}})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/", strings.NewReader("data"))
	req.Header.Set("x-ambry-service-id", "svc")
	req.Header.Set("x-ambry-content-type", "text/plain")
	req.Header.Set("x-ambry-ttl", "-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if resp.Header.Get("Location") != "new-blob-id" {
		t.Fatalf("Location = %q", resp.Header.Get("Location"))
	}
}

func TestHTTPPeersEndpoint(t *testing.T) {
	srv := newTestServer(&scriptedRouter{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/peers")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
