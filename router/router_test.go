package router

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ambrystore/frontend/clock"
	"github.com/ambrystore/frontend/cluster"
	"github.com/ambrystore/frontend/cmn"
	"github.com/ambrystore/frontend/transport"
)

// scriptedTransport is an in-memory ReplicaTransport test double: Send
// resolves synchronously against a per-address script and the response sits
// in a queue until the next Poll, standing in for a real datanode reply.
type scriptedTransport struct {
	mu      sync.Mutex
	next    uint64
	pending []transport.Response
	byAddr  map[string]cmn.ReplicaErrorCode
	bodies  map[string][]byte
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{byAddr: map[string]cmn.ReplicaErrorCode{}, bodies: map[string][]byte{}}
}

func (s *scriptedTransport) Send(replica cluster.ReplicaID, addr string, frame transport.Frame) (transport.RequestHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	h := transport.RequestHandle(s.next)
	code, scripted := s.byAddr[addr]
	if !scripted {
		return h, nil // no script for this address: simulate a replica that never responds
	}
	resp := transport.Response{Handle: h, Replica: replica, Code: code}
	if code == cmn.NoError && frame.Op == transport.OpGet {
		body := s.bodies[addr]
		resp.Properties = cmn.BlobProperties{Size: int64(len(body))}
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}
	s.pending = append(s.pending, resp)
	return h, nil
}

func (s *scriptedTransport) Poll() []transport.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

func (s *scriptedTransport) Close() {}

func testView(t *testing.T, partitionID string, addrs ...string) *cluster.View {
	t.Helper()
	v := cluster.NewView(0)
	replicas := make([]cluster.ReplicaID, len(addrs))
	datanodes := make([]cluster.Datanode, len(addrs))
	for i, addr := range addrs {
		dnID := addr
		replicas[i] = cluster.ReplicaID{PartitionID: partitionID, DatanodeID: dnID}
		datanodes[i] = cluster.Datanode{ID: dnID, Addr: addr}
	}
	v.Update([]cluster.Partition{{ID: partitionID, Writable: true, Replicas: replicas}}, datanodes)
	return v
}

func blobIDFor(partitionID string) string {
	return cmn.EncodeBlobID(cmn.BlobID{Version: cmn.BlobIDVersion1, PartitionID: partitionID})
}

func waitDeleteResult(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delete result")
		return nil
	}
}

func TestCoreDeleteSucceedsOnQuorum(t *testing.T) {
	view := testView(t, "p1", "dn1", "dn2", "dn3")
	xport := newScriptedTransport()
	xport.byAddr["dn1"] = cmn.NoError
	xport.byAddr["dn2"] = cmn.NoError
	xport.byAddr["dn3"] = cmn.ReplicaUnavailable

	core := NewCore(view, xport, clock.Real{})
	defer core.Close()

	if err := waitDeleteResult(t, core.Delete(blobIDFor("p1"))); err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}
}

func TestCoreDeleteUnanimousNotFound(t *testing.T) {
	view := testView(t, "p1", "dn1", "dn2", "dn3")
	xport := newScriptedTransport()
	xport.byAddr["dn1"] = cmn.BlobNotFound
	xport.byAddr["dn2"] = cmn.BlobNotFound
	xport.byAddr["dn3"] = cmn.BlobNotFound

	core := NewCore(view, xport, clock.Real{})
	defer core.Close()

	err := waitDeleteResult(t, core.Delete(blobIDFor("p1")))
	re, ok := cmn.AsRouterError(err)
	if !ok || re.Code != cmn.ErrBlobDoesNotExist {
		t.Fatalf("expected ErrBlobDoesNotExist, got %v", err)
	}
}

func TestCoreDeleteShortCircuitsOnBlobDeleted(t *testing.T) {
	view := testView(t, "p1", "dn1", "dn2", "dn3")
	xport := newScriptedTransport()
	xport.byAddr["dn1"] = cmn.BlobDeletedReplica
	xport.byAddr["dn2"] = cmn.NoError
	xport.byAddr["dn3"] = cmn.NoError

	core := NewCore(view, xport, clock.Real{})
	defer core.Close()

	err := waitDeleteResult(t, core.Delete(blobIDFor("p1")))
	re, ok := cmn.AsRouterError(err)
	if !ok || re.Code != cmn.ErrBlobDeleted {
		t.Fatalf("expected ErrBlobDeleted short-circuit, got %v", err)
	}
}

func TestCoreDeleteRejectsInvalidBlobID(t *testing.T) {
	view := testView(t, "p1", "dn1")
	xport := newScriptedTransport()
	core := NewCore(view, xport, clock.Real{})
	defer core.Close()

	err := waitDeleteResult(t, core.Delete("not-a-valid-blob-id!!"))
	re, ok := cmn.AsRouterError(err)
	if !ok || re.Code != cmn.ErrInvalidBlobID {
		t.Fatalf("expected ErrInvalidBlobID, got %v", err)
	}
}

func TestCoreGetReturnsFirstUsableBody(t *testing.T) {
	view := testView(t, "p1", "dn1", "dn2", "dn3")
	xport := newScriptedTransport()
	xport.byAddr["dn1"] = cmn.NoError
	xport.byAddr["dn2"] = cmn.NoError
	xport.byAddr["dn3"] = cmn.NoError
	xport.bodies["dn1"] = []byte("hello world")
	xport.bodies["dn2"] = []byte("hello world")
	xport.bodies["dn3"] = []byte("hello world")

	core := NewCore(view, xport, clock.Real{})
	defer core.Close()

	var outcome GetOutcome
	select {
	case outcome = <-core.Get(blobIDFor("p1"), cmn.GetOptionNone, -1, -1):
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for get result")
	}
	if outcome.Err != nil {
		t.Fatalf("expected success, got %v", outcome.Err)
	}
	got, err := io.ReadAll(outcome.Result.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got body %q", got)
	}
}

func TestCoreGetRangeNotSatisfiable(t *testing.T) {
	view := testView(t, "p1", "dn1")
	xport := newScriptedTransport()
	xport.byAddr["dn1"] = cmn.NoError
	xport.bodies["dn1"] = []byte("short")

	core := NewCore(view, xport, clock.Real{})
	defer core.Close()

	var outcome GetOutcome
	select {
	case outcome = <-core.Get(blobIDFor("p1"), cmn.GetOptionNone, 1000, -1):
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for get result")
	}
	re, ok := cmn.AsRouterError(outcome.Err)
	if !ok || re.Code != cmn.ErrRangeNotSatisfiable {
		t.Fatalf("expected ErrRangeNotSatisfiable, got %v", outcome.Err)
	}
}

func TestCorePutSucceedsOnQuorum(t *testing.T) {
	view := testView(t, "p1", "dn1", "dn2", "dn3")
	xport := newScriptedTransport()
	xport.byAddr["dn1"] = cmn.NoError
	xport.byAddr["dn2"] = cmn.NoError
	xport.byAddr["dn3"] = cmn.DiskUnavailable

	core := NewCore(view, xport, clock.Real{})
	defer core.Close()

	body := []byte("some blob content")
	props := cmn.BlobProperties{Size: int64(len(body))}

	var outcome PutOutcome
	select {
	case outcome = <-core.Put(props, nil, bytes.NewReader(body)):
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for put result")
	}
	if outcome.Err != nil {
		t.Fatalf("expected success, got %v", outcome.Err)
	}
	if outcome.Result.BlobIDString == "" {
		t.Fatal("expected a minted blob id")
	}
	if _, err := cmn.DecodeBlobID(outcome.Result.BlobIDString); err != nil {
		t.Fatalf("minted blob id does not decode: %v", err)
	}
}

func TestCorePutRejectsOversizedBlob(t *testing.T) {
	view := testView(t, "p1", "dn1")
	xport := newScriptedTransport()
	core := NewCore(view, xport, clock.Real{})
	defer core.Close()

	cfg := cmn.GCO.Get()
	props := cmn.BlobProperties{Size: cfg.MaxBlobSize + 1}

	var outcome PutOutcome
	select {
	case outcome = <-core.Put(props, nil, bytes.NewReader(nil)):
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for put result")
	}
	re, ok := cmn.AsRouterError(outcome.Err)
	if !ok || re.Code != cmn.ErrBlobTooLarge {
		t.Fatalf("expected ErrBlobTooLarge, got %v", outcome.Err)
	}
}

func TestCoreGetIncludeDeletedBlobsSucceeds(t *testing.T) {
	view := testView(t, "p1", "dn1")
	xport := newScriptedTransport()
	xport.byAddr["dn1"] = cmn.BlobDeletedReplica

	core := NewCore(view, xport, clock.Real{})
	defer core.Close()

	var outcome GetOutcome
	select {
	case outcome = <-core.Get(blobIDFor("p1"), cmn.GetOptionIncludeDeletedBlobs, -1, -1):
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for get result")
	}
	if outcome.Err != nil {
		t.Fatalf("expected Include_Deleted_Blobs to succeed on a deleted replica, got %v", outcome.Err)
	}
}

func TestCoreGetIncludeExpiredBlobsSucceeds(t *testing.T) {
	view := testView(t, "p1", "dn1")
	xport := newScriptedTransport()
	xport.byAddr["dn1"] = cmn.BlobExpiredReplica

	core := NewCore(view, xport, clock.Real{})
	defer core.Close()

	var outcome GetOutcome
	select {
	case outcome = <-core.Get(blobIDFor("p1"), cmn.GetOptionIncludeExpiredBlobs, -1, -1):
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for get result")
	}
	if outcome.Err != nil {
		t.Fatalf("expected Include_Expired_Blobs to succeed on an expired replica, got %v", outcome.Err)
	}
}

func TestCoreGetWithoutOptionStillFailsOnDeleted(t *testing.T) {
	view := testView(t, "p1", "dn1")
	xport := newScriptedTransport()
	xport.byAddr["dn1"] = cmn.BlobDeletedReplica

	core := NewCore(view, xport, clock.Real{})
	defer core.Close()

	var outcome GetOutcome
	select {
	case outcome = <-core.Get(blobIDFor("p1"), cmn.GetOptionNone, -1, -1):
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for get result")
	}
	re, ok := cmn.AsRouterError(outcome.Err)
	if !ok || re.Code != cmn.ErrBlobDeleted {
		t.Fatalf("expected ErrBlobDeleted without Include_Deleted_Blobs, got %v", outcome.Err)
	}
}

// TestCoreGetPrecedenceResolutionIgnoresArrivalOrder reproduces the
// mixed-failure-code scenario: a lower-precedence Blob_Expired reply and a
// higher-precedence Blob_Authorization_Failure reply land in the same
// poll batch. The operation must resolve to the higher-precedence code
// regardless of which replica answered first in cluster-map order.
func TestCoreGetPrecedenceResolutionIgnoresArrivalOrder(t *testing.T) {
	view := testView(t, "p1", "dn1", "dn2")
	xport := newScriptedTransport()
	xport.byAddr["dn1"] = cmn.BlobExpiredReplica
	xport.byAddr["dn2"] = cmn.BlobAuthorizationFailureReplica

	core := NewCore(view, xport, clock.Real{})
	defer core.Close()

	var outcome GetOutcome
	select {
	case outcome = <-core.Get(blobIDFor("p1"), cmn.GetOptionNone, -1, -1):
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for get result")
	}
	re, ok := cmn.AsRouterError(outcome.Err)
	if !ok || re.Code != cmn.ErrBlobAuthorizationFailure {
		t.Fatalf("expected the higher-precedence Blob_Authorization_Failure to win over the earlier-arriving Blob_Expired, got %v", outcome.Err)
	}
}

// TestCoreDeleteFailsFastOnCertainFailure exercises §4.2's fail-fast rule
// directly: one replica (dn3) never responds at all, so an
// implementation that waits for every replica (tracker.Done()) before
// failing would block until the operation's overall timeout. With three
// other replicas already reporting failures that make the success
// target unreachable, the operation must finish as soon as that becomes
// certain.
func TestCoreDeleteFailsFastOnCertainFailure(t *testing.T) {
	view := testView(t, "p1", "dn1", "dn2", "dn3", "dn4")
	xport := newScriptedTransport()
	xport.byAddr["dn1"] = cmn.ReplicaUnavailable
	xport.byAddr["dn2"] = cmn.ReplicaUnavailable
	xport.byAddr["dn4"] = cmn.ReplicaUnavailable
	// dn3 is deliberately left unscripted: it never answers.

	core := NewCore(view, xport, clock.Real{})
	defer core.Close()

	start := time.Now()
	err := waitDeleteResult(t, core.Delete(blobIDFor("p1")))
	if elapsed := time.Since(start); elapsed >= cmn.GCO.Get().OperationTimeout {
		t.Fatalf("delete took %v, did not fail fast ahead of the operation timeout", elapsed)
	}
	re, ok := cmn.AsRouterError(err)
	if !ok || re.Code != cmn.ErrAmbryUnavailable {
		t.Fatalf("expected ErrAmbryUnavailable once the success target became unreachable, got %v", err)
	}
}

func TestCoreCloseAbortsInFlightOperations(t *testing.T) {
	view := testView(t, "p1", "dn1", "dn2", "dn3")
	xport := newScriptedTransport() // no scripted responses: every replica hangs
	core := NewCore(view, xport, clock.Real{})

	ch := core.Delete(blobIDFor("p1"))
	core.Close()

	select {
	case err := <-ch:
		re, ok := cmn.AsRouterError(err)
		if !ok || re.Code != cmn.ErrRouterClosed {
			t.Fatalf("expected ErrRouterClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for abort result")
	}
}
