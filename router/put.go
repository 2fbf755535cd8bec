package router

import (
	"bytes"
	"time"

	"github.com/ambrystore/frontend/clock"
	"github.com/ambrystore/frontend/cluster"
	"github.com/ambrystore/frontend/cmn"
	"github.com/ambrystore/frontend/transport"
)

// PutResult is the payload delivered to a successful PUT caller.
type PutResult struct {
	BlobIDString string
}

// PutOutcome pairs a PutResult with the router error that replaces it on
// failure; exactly one of the two is non-nil.
type PutOutcome struct {
	Result *PutResult
	Err    error
}

// PutOperation fans a fully-buffered blob body out to a partition's
// replicas and succeeds once successTarget of them confirm the write
// (§4.2.2). The body is read into memory once by the caller (Core.Put,
// after the BlobTooLarge check) so that a fresh io.Reader can be replayed
// to each replica independently; this trades memory for the simplicity of
// not needing a multi-reader fan-out over a streaming body.
type PutOperation struct {
	*opBase
	blobIDStr    string
	properties   cmn.BlobProperties
	userMetadata []byte
	body         []byte
	resultCh     chan PutOutcome
}

func newPutOperation(
	id uint64, partition cluster.Partition, blobIDStr string, properties cmn.BlobProperties,
	userMetadata []byte, body []byte,
	view *cluster.View, xport transport.ReplicaTransport, clk clock.Clock,
	registerHandle func(transport.RequestHandle),
) *PutOperation {
	cfg := cmn.GCO.Get()
	return &PutOperation{
		opBase:       newOpBase(id, partition, view, xport, clk, registerHandle, cfg.Parallelism, cfg.PutSuccessTarget),
		blobIDStr:    blobIDStr,
		properties:   properties,
		userMetadata: userMetadata,
		body:         body,
		resultCh:     make(chan PutOutcome, 1),
	}
}

// Result returns the PUT's outcome channel. Sent to exactly once, then
// closed.
func (op *PutOperation) Result() <-chan PutOutcome { return op.resultCh }

func (op *PutOperation) makeFrame(replica cluster.ReplicaID) transport.Frame {
	return transport.Frame{
		Op: transport.OpPut, BlobID: op.blobIDStr,
		Properties: op.properties, UserMetadata: op.userMetadata,
		Body: bytes.NewReader(op.body),
	}
}

func (op *PutOperation) handleResponse(resp transport.Response) {
	idx, ok := op.matchHandle(resp.Handle)
	if !ok {
		return
	}
	op.tracker.Record(idx, resp.Code)
}

func (op *PutOperation) pump(now time.Time) {
	if op.terminal() {
		return
	}
	op.expirePerReplicaTimeouts(now)

	if op.tracker.SucceededEnough() {
		op.finish(&PutResult{BlobIDString: op.blobIDStr}, nil)
		return
	}
	if op.overallExpired(now) {
		op.finish(nil, cmn.NewRouterError(cmn.ErrOperationTimedOut, "put operation timed out"))
		return
	}
	if op.tracker.CannotSucceed() {
		op.finish(nil, resolvePutFailure(op.tracker))
		return
	}
	op.issue(op.makeFrame)
}

func (op *PutOperation) finish(result *PutResult, err error) {
	if !op.finishOnce() {
		return
	}
	op.resultCh <- PutOutcome{Result: result, Err: err}
	close(op.resultCh)
}

func (op *PutOperation) abort(err error) { op.finish(nil, err) }
