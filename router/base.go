package router

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/ambrystore/frontend/clock"
	"github.com/ambrystore/frontend/cluster"
	"github.com/ambrystore/frontend/cmn"
	"github.com/ambrystore/frontend/transport"
)

// opBase is the bookkeeping every ReplicaOperation (delete/get/put) embeds:
// replica fan-out via Tracker, handle-to-replica-index matching, per-replica
// and overall deadlines, and the single-completion flag RouterCore's driver
// loop relies on to know when an operation can be forgotten.
type opBase struct {
	theID uint64
	view  *cluster.View
	xport transport.ReplicaTransport
	clk   clock.Clock

	tracker        *Tracker
	registerHandle func(transport.RequestHandle)

	mu              sync.Mutex
	handleIdx       map[transport.RequestHandle]int
	replicaDeadline map[int]time.Time

	perReplicaTimeout time.Duration
	deadline          time.Time

	finished atomic.Bool
}

func newOpBase(
	id uint64, partition cluster.Partition, view *cluster.View, xport transport.ReplicaTransport,
	clk clock.Clock, registerHandle func(transport.RequestHandle), parallelism, successTarget int,
) *opBase {
	cfg := cmn.GCO.Get()
	return &opBase{
		theID:             id,
		view:              view,
		xport:             xport,
		clk:               clk,
		tracker:           NewTracker(partition.Replicas, parallelism, successTarget),
		registerHandle:    registerHandle,
		handleIdx:         make(map[transport.RequestHandle]int),
		replicaDeadline:   make(map[int]time.Time),
		perReplicaTimeout: cfg.PerReplicaTimeout,
		deadline:          clk.Now().Add(cfg.OperationTimeout),
	}
}

func (b *opBase) id() uint64     { return b.theID }
func (b *opBase) terminal() bool { return b.finished.Load() }

// finishOnce reports whether this call is the one that transitions the
// operation to terminal -- the per-operation half of the single-completion
// discipline; RouterCore's registry removal on the next tick is the other
// half.
func (b *opBase) finishOnce() bool {
	return b.finished.CompareAndSwap(false, true)
}

// issue sends makeFrame's output to every replica NextBatch hands back. A
// replica whose datanode address no longer resolves is recorded as a local
// failure rather than ever blocking the driver loop.
func (b *opBase) issue(makeFrame func(replica cluster.ReplicaID) transport.Frame) {
	now := b.clk.Now()
	for _, idx := range b.tracker.NextBatch() {
		replica := b.tracker.Replica(idx)
		dn, ok := b.view.Datanode(replica.DatanodeID)
		if !ok {
			b.tracker.Record(idx, cmn.PartitionUnknown)
			continue
		}
		handle, err := b.xport.Send(replica, dn.Addr, makeFrame(replica))
		if err != nil {
			b.tracker.Record(idx, cmn.ReplicaUnavailable)
			continue
		}
		b.mu.Lock()
		b.handleIdx[handle] = idx
		b.replicaDeadline[idx] = now.Add(b.perReplicaTimeout)
		b.mu.Unlock()
		b.registerHandle(handle)
	}
}

// matchHandle consumes the handle's mapping, if any. A handle can arrive
// after its replica slot already timed out, in which case ok is false and
// the caller drops the response.
func (b *opBase) matchHandle(h transport.RequestHandle) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, ok := b.handleIdx[h]
	if ok {
		delete(b.handleIdx, h)
		delete(b.replicaDeadline, idx)
	}
	return idx, ok
}

// expirePerReplicaTimeouts abandons any replica slot whose individual
// deadline has passed without a response. A per-replica timeout alone never
// fails the operation -- only CannotSucceed does that.
func (b *opBase) expirePerReplicaTimeouts(now time.Time) {
	b.mu.Lock()
	var expired []int
	for idx, dl := range b.replicaDeadline {
		if now.After(dl) {
			expired = append(expired, idx)
		}
	}
	for _, idx := range expired {
		delete(b.replicaDeadline, idx)
	}
	for h, i := range b.handleIdx {
		for _, idx := range expired {
			if i == idx {
				delete(b.handleIdx, h)
			}
		}
	}
	b.mu.Unlock()
	for _, idx := range expired {
		b.tracker.Abandon(idx, cmn.ReplicaUnavailable)
	}
}

func (b *opBase) overallExpired(now time.Time) bool {
	return now.After(b.deadline)
}

// resolveByPrecedence picks the highest-ranked code among codes per rank,
// the shared core of every per-operation-kind resolution table.
func resolveByPrecedence(codes []cmn.ReplicaErrorCode, rank func(cmn.ReplicaErrorCode) int) (cmn.ReplicaErrorCode, bool) {
	best := cmn.UnknownErrorReplica
	bestRank := -1
	found := false
	for _, c := range codes {
		if r := rank(c); r > bestRank {
			bestRank, best, found = r, c, true
		}
	}
	return best, found
}

// resolveDeleteOrGetFailure applies a resolution table that includes
// Blob_Not_Found. Blob_Not_Found is left out of the ranking: the highest
// remaining failure code wins, and Blob_Not_Found is reported only when
// every replica answered it (replicacodes.go's deletePrecedence and
// getPrecedence comments describe this exact caller contract).
func resolveDeleteOrGetFailure(t *Tracker, rank func(cmn.ReplicaErrorCode) int) *cmn.RouterError {
	codes := t.FailureCodes()
	rest := make([]cmn.ReplicaErrorCode, 0, len(codes))
	for _, c := range codes {
		if c != cmn.BlobNotFound {
			rest = append(rest, c)
		}
	}
	if best, ok := resolveByPrecedence(rest, rank); ok {
		return replicaCodeToRouterError(best)
	}
	if code, ok := t.AllRespondedCode(); ok && code == cmn.BlobNotFound {
		return replicaCodeToRouterError(code)
	}
	return cmn.NewRouterError(cmn.ErrAmbryUnavailable, "replicas disagree on blob existence")
}

// resolvePutFailure applies the PUT precedence table (§4.2.2), which has no
// Blob_Not_Found special case.
func resolvePutFailure(t *Tracker) *cmn.RouterError {
	codes := t.FailureCodes()
	if best, ok := resolveByPrecedence(codes, cmn.ReplicaErrorCode.PutPrecedence); ok {
		return replicaCodeToRouterError(best)
	}
	return cmn.NewRouterError(cmn.ErrAmbryUnavailable, "replicas unavailable")
}

// replicaCodeToRouterError maps one replica-side outcome to its router
// taxonomy equivalent, the last step of every resolution table.
func replicaCodeToRouterError(code cmn.ReplicaErrorCode) *cmn.RouterError {
	switch code {
	case cmn.BlobAuthorizationFailureReplica:
		return cmn.NewRouterError(cmn.ErrBlobAuthorizationFailure, "replica denied access")
	case cmn.BlobExpiredReplica:
		return cmn.NewRouterError(cmn.ErrBlobExpired, "blob has expired")
	case cmn.BlobDeletedReplica:
		return cmn.NewRouterError(cmn.ErrBlobDeleted, "blob has been deleted")
	case cmn.BlobNotFound:
		return cmn.NewRouterError(cmn.ErrBlobDoesNotExist, "blob does not exist")
	default:
		return cmn.NewRouterError(cmn.ErrAmbryUnavailable, "replicas unavailable: "+code.String())
	}
}
