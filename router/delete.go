package router

import (
	"time"

	"github.com/ambrystore/frontend/clock"
	"github.com/ambrystore/frontend/cluster"
	"github.com/ambrystore/frontend/cmn"
	"github.com/ambrystore/frontend/transport"
)

// DeleteOperation drives one logical delete across a partition's replicas
// (§4.2): succeeds once successTarget replicas confirm, short-circuits to
// Failed(BlobDeleted) the instant any replica reports the blob is already
// deleted (delete is not idempotent at the router layer -- it is the
// caller's job to treat a repeat delete as a no-op if it wants to), and
// otherwise resolves a failing operation through the delete precedence
// table once it can no longer reach its success target.
type DeleteOperation struct {
	*opBase
	blobIDStr string
	resultCh  chan error
}

func newDeleteOperation(
	id uint64, partition cluster.Partition, blobIDStr string,
	view *cluster.View, xport transport.ReplicaTransport, clk clock.Clock,
	registerHandle func(transport.RequestHandle),
) *DeleteOperation {
	cfg := cmn.GCO.Get()
	return &DeleteOperation{
		opBase:    newOpBase(id, partition, view, xport, clk, registerHandle, cfg.Parallelism, cfg.DeleteSuccessTarget),
		blobIDStr: blobIDStr,
		resultCh:  make(chan error, 1),
	}
}

// Result returns the delete's outcome channel: nil on success, else a
// *cmn.RouterError. Sent to exactly once, then closed.
func (op *DeleteOperation) Result() <-chan error { return op.resultCh }

func (op *DeleteOperation) makeFrame(replica cluster.ReplicaID) transport.Frame {
	return transport.Frame{Op: transport.OpDelete, BlobID: op.blobIDStr}
}

func (op *DeleteOperation) handleResponse(resp transport.Response) {
	idx, ok := op.matchHandle(resp.Handle)
	if !ok {
		return
	}
	op.tracker.Record(idx, resp.Code)
}

func (op *DeleteOperation) pump(now time.Time) {
	if op.terminal() {
		return
	}
	op.expirePerReplicaTimeouts(now)

	for _, code := range op.tracker.FailureCodes() {
		if code == cmn.BlobDeletedReplica {
			op.finish(cmn.NewRouterError(cmn.ErrBlobDeleted, "blob is already deleted"))
			return
		}
	}
	if op.tracker.SucceededEnough() {
		op.finish(nil)
		return
	}
	if op.overallExpired(now) {
		op.finish(cmn.NewRouterError(cmn.ErrOperationTimedOut, "delete operation timed out"))
		return
	}
	if op.tracker.CannotSucceed() {
		op.finish(resolveDeleteOrGetFailure(op.tracker, cmn.ReplicaErrorCode.DeletePrecedence))
		return
	}
	op.issue(op.makeFrame)
}

func (op *DeleteOperation) finish(err error) {
	if !op.finishOnce() {
		return
	}
	op.resultCh <- err
	close(op.resultCh)
}

func (op *DeleteOperation) abort(err error) { op.finish(err) }
