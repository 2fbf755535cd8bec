// Package router implements RouterCore and the per-operation state
// machines (ReplicaOperation) that drive one logical GET/PUT/DELETE
// across a partition's replicas, enforcing the success-threshold,
// short-circuit, and timeout rules of §4.2. Grounded on a
// broadcast-and-collect idiom (a results channel plus target-wait-ack
// bookkeeping) generalized from a cluster-wide transaction to a per-blob
// replica fan-out.
package router

import (
	"sync"

	"github.com/ambrystore/frontend/cluster"
	"github.com/ambrystore/frontend/cmn"
)

// Tracker holds the per-operation replica bookkeeping named in §3's
// OperationTracker state: which replicas are still pending, which are
// inflight, which have succeeded or failed (tagged with their source
// code), all under one mutex since one operation's tracker is only ever
// touched by the single driver goroutine plus occasional direct calls
// from the operation's own issue path.
type Tracker struct {
	mu sync.Mutex

	replicas []cluster.ReplicaID

	pendingIdx  []int // replica indices not yet issued, in cluster-map order
	inflightIdx map[int]struct{}
	codes       []*cmn.ReplicaErrorCode // per replica index; nil until responded

	successCount int
	parallelism  int
	successTarget int
}

// NewTracker constructs a Tracker over replicas with the given fan-out
// parallelism and success target.
func NewTracker(replicas []cluster.ReplicaID, parallelism, successTarget int) *Tracker {
	cmn.AssertMsg(len(replicas) > 0, "tracker constructed with no replicas")
	pending := make([]int, len(replicas))
	for i := range replicas {
		pending[i] = i
	}
	return &Tracker{
		replicas:      replicas,
		pendingIdx:    pending,
		inflightIdx:   make(map[int]struct{}, parallelism),
		codes:         make([]*cmn.ReplicaErrorCode, len(replicas)),
		parallelism:   parallelism,
		successTarget: successTarget,
	}
}

// NextBatch returns up to (parallelism - current inflight) pending
// replica indices to issue now, marking them inflight. Never returns more
// than |replicas| total across the operation's lifetime (§8 invariant 3).
func (t *Tracker) NextBatch() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	room := t.parallelism - len(t.inflightIdx)
	if room <= 0 || len(t.pendingIdx) == 0 {
		return nil
	}
	n := room
	if n > len(t.pendingIdx) {
		n = len(t.pendingIdx)
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		idx := t.pendingIdx[i]
		t.inflightIdx[idx] = struct{}{}
		out = append(out, idx)
	}
	t.pendingIdx = t.pendingIdx[n:]
	return out
}

// Replica returns the ReplicaID at idx.
func (t *Tracker) Replica(idx int) cluster.ReplicaID {
	return t.replicas[idx]
}

// IndexOf returns the replica index for a given ReplicaID. (Responses are
// matched to tracker slots by request handle in opBase.matchHandle, not
// through this lookup.) Linear scan is fine: parallelism is a small integer (typically 3)
// and the replica set per partition is small.
func (t *Tracker) IndexOf(r cluster.ReplicaID) (int, bool) {
	for i, rr := range t.replicas {
		if rr == r {
			return i, true
		}
	}
	return 0, false
}

// Record stores the outcome for replica idx and returns whether it was
// the first response recorded for that replica (a duplicate/late response
// for an already-recorded replica is ignored).
func (t *Tracker) Record(idx int, code cmn.ReplicaErrorCode) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.codes[idx] != nil {
		return false
	}
	c := code
	t.codes[idx] = &c
	delete(t.inflightIdx, idx)
	if code == cmn.NoError {
		t.successCount++
	}
	return true
}

// Abandon drops idx from inflight tracking by recording code for it (the
// caller passes Replica_Unavailable), used when a per-replica timeout fires but other replicas may still satisfy
// the success target (§4.2 "expiry of a per-request deadline does not
// fail the operation").
func (t *Tracker) Abandon(idx int, code cmn.ReplicaErrorCode) {
	t.Record(idx, code)
}

// Counts returns (successes, failures, inflight, pending); their sum is
// always |replicas| (§3 invariant).
func (t *Tracker) Counts() (successes, failures, inflight, pending int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.codes {
		if c == nil {
			continue
		}
		if *c == cmn.NoError {
			successes++
		} else {
			failures++
		}
	}
	return successes, failures, len(t.inflightIdx), len(t.pendingIdx)
}

// SucceededEnough reports whether the success target has been reached.
func (t *Tracker) SucceededEnough() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.successCount >= t.successTarget
}

// CannotSucceed reports whether the remaining (pending+inflight) replicas
// can no longer push successCount to successTarget even if every one of
// them succeeds.
func (t *Tracker) CannotSucceed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining := len(t.pendingIdx) + len(t.inflightIdx)
	return remaining+t.successCount < t.successTarget
}

// Done reports whether every replica has responded (no inflight, no
// pending) -- the precondition for the unanimous Blob_Not_Found rule.
func (t *Tracker) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflightIdx) == 0 && len(t.pendingIdx) == 0
}

// FailureCodes returns the multiset of recorded non-success codes, the
// input to the precedence-resolution tables.
func (t *Tracker) FailureCodes() []cmn.ReplicaErrorCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]cmn.ReplicaErrorCode, 0, len(t.codes))
	for _, c := range t.codes {
		if c != nil && *c != cmn.NoError {
			out = append(out, *c)
		}
	}
	return out
}

// AllRespondedCode reports the single code every replica reported, if
// every one of them reported the very same code; used for the unanimous
// Blob_Not_Found rule. The second return is false if any replica hasn't
// responded yet, or replicas disagree.
func (t *Tracker) AllRespondedCode() (cmn.ReplicaErrorCode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.inflightIdx) != 0 || len(t.pendingIdx) != 0 {
		return 0, false
	}
	if len(t.codes) == 0 {
		return 0, false
	}
	first := t.codes[0]
	if first == nil {
		return 0, false
	}
	for _, c := range t.codes[1:] {
		if c == nil || *c != *first {
			return 0, false
		}
	}
	return *first, true
}
