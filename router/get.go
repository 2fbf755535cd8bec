package router

import (
	"io"
	"time"

	"github.com/ambrystore/frontend/clock"
	"github.com/ambrystore/frontend/cluster"
	"github.com/ambrystore/frontend/cmn"
	"github.com/ambrystore/frontend/transport"
)

// GetResult is the payload delivered to the winning GET caller.
type GetResult struct {
	Properties   cmn.BlobProperties
	UserMetadata []byte
	Body         io.ReadCloser
}

// GetOutcome pairs a GetResult with the router error that replaces it on
// failure; exactly one of the two is non-nil.
type GetOutcome struct {
	Result *GetResult
	Err    error
}

// GetOperation implements first-usable-response-wins (§4.2.1): the first
// replica to answer No_Error, or to answer Blob_Deleted/Blob_Expired when
// the caller's x-ambry-get-option explicitly tolerates it, hands its body
// straight to the caller and every other in-flight reply is discarded.
// Unlike DeleteOperation's Blob_Deleted short-circuit, a GET never treats
// Blob_Deleted/Blob_Expired/Blob_Authorization_Failure as an immediate,
// order-sensitive failure -- they're recorded in the tracker like any
// other non-success code and only resolved, through getPrecedence, once
// CannotSucceed makes the operation's fate certain (§5: terminal state
// depends on the multiset of outcomes, not arrival order).
type GetOperation struct {
	*opBase
	blobIDStr  string
	getOption  cmn.GetOption
	rangeStart int64 // -1: no range requested
	rangeEnd   int64 // -1: open-ended
	resultCh   chan GetOutcome
}

func newGetOperation(
	id uint64, partition cluster.Partition, blobIDStr string, opt cmn.GetOption, rangeStart, rangeEnd int64,
	view *cluster.View, xport transport.ReplicaTransport, clk clock.Clock,
	registerHandle func(transport.RequestHandle),
) *GetOperation {
	cfg := cmn.GCO.Get()
	return &GetOperation{
		opBase:     newOpBase(id, partition, view, xport, clk, registerHandle, cfg.Parallelism, cfg.GetSuccessTarget),
		blobIDStr:  blobIDStr,
		getOption:  opt,
		rangeStart: rangeStart,
		rangeEnd:   rangeEnd,
		resultCh:   make(chan GetOutcome, 1),
	}
}

// Result returns the GET's outcome channel. Sent to exactly once, then
// closed.
func (op *GetOperation) Result() <-chan GetOutcome { return op.resultCh }

func (op *GetOperation) makeFrame(replica cluster.ReplicaID) transport.Frame {
	return transport.Frame{
		Op: transport.OpGet, BlobID: op.blobIDStr, GetOption: op.getOption,
		RangeStart: op.rangeStart, RangeEnd: op.rangeEnd,
	}
}

func (op *GetOperation) handleResponse(resp transport.Response) {
	idx, ok := op.matchHandle(resp.Handle)
	if !ok {
		closeBody(resp.Body)
		return
	}
	if op.terminal() {
		op.tracker.Record(idx, resp.Code)
		closeBody(resp.Body)
		return
	}
	op.tracker.Record(idx, resp.Code)

	switch resp.Code {
	case cmn.NoError:
		op.succeedWith(resp)
	case cmn.BlobDeletedReplica:
		if op.getOption.IncludesDeleted() {
			op.succeedWith(resp)
			return
		}
		closeBody(resp.Body)
	case cmn.BlobExpiredReplica:
		if op.getOption.IncludesExpired() {
			op.succeedWith(resp)
			return
		}
		closeBody(resp.Body)
	default:
		// Blob_Authorization_Failure and every health code stay recorded
		// in the tracker; pump resolves them through getPrecedence once
		// CannotSucceed fires.
		closeBody(resp.Body)
	}
}

// succeedWith finishes the operation with resp's body as the winning
// result, after checking that any requested byte range still fits -- the
// shared path for an ordinary No_Error reply and for a Blob_Deleted or
// Blob_Expired reply the caller's GetOption explicitly accepts.
func (op *GetOperation) succeedWith(resp transport.Response) {
	if err := op.validateRange(resp.Properties); err != nil {
		closeBody(resp.Body)
		op.finish(nil, err)
		return
	}
	op.finish(&GetResult{Properties: resp.Properties, UserMetadata: resp.UserMetadata, Body: resp.Body}, nil)
}

func (op *GetOperation) validateRange(props cmn.BlobProperties) error {
	if op.rangeStart < 0 {
		return nil
	}
	if op.rangeStart >= props.Size {
		return cmn.NewRouterError(cmn.ErrRangeNotSatisfiable, "range start is beyond blob size")
	}
	if op.rangeEnd >= 0 && op.rangeEnd >= props.Size {
		return cmn.NewRouterError(cmn.ErrRangeNotSatisfiable, "range end is beyond blob size")
	}
	return nil
}

func (op *GetOperation) pump(now time.Time) {
	if op.terminal() {
		return
	}
	op.expirePerReplicaTimeouts(now)

	if op.overallExpired(now) {
		op.finish(nil, cmn.NewRouterError(cmn.ErrOperationTimedOut, "get operation timed out"))
		return
	}
	if op.tracker.CannotSucceed() {
		op.finish(nil, resolveDeleteOrGetFailure(op.tracker, cmn.ReplicaErrorCode.GetPrecedence))
		return
	}
	op.issue(op.makeFrame)
}

func (op *GetOperation) finish(result *GetResult, err error) {
	if !op.finishOnce() {
		if result != nil {
			closeBody(result.Body)
		}
		return
	}
	op.resultCh <- GetOutcome{Result: result, Err: err}
	close(op.resultCh)
}

func (op *GetOperation) abort(err error) { op.finish(nil, err) }

func closeBody(body io.ReadCloser) {
	if body != nil {
		body.Close()
	}
}
