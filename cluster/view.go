// Package cluster provides the frontend's reference ClusterView: a
// versioned, read-mostly map of partitions to their ordered replica
// lists and datanode addresses, grounded on a cluster-membership-map /
// HRW-target-list shape but carrying only what the router core needs:
// placement, not rebalance.
package cluster

import (
	"strconv"
	"sync/atomic"

	"github.com/ambrystore/frontend/cmn"
)

// ReplicaID binds a partition to a specific datanode (§3).
type ReplicaID struct {
	PartitionID string
	DatanodeID  string
}

// Datanode is the network address of one storage replica host.
type Datanode struct {
	ID   string
	Addr string // host:port
}

// Partition is an opaque placement unit with a stable string form and a
// non-empty, stable-for-the-life-of-the-view list of replica datanodes
// (§3's invariant on replicaIds()).
type Partition struct {
	ID        string
	Writable  bool
	Replicas  []ReplicaID // cluster-map order; RouterCore fans out in this order
	Datacenter int8
}

// snapshot is the immutable state swapped atomically on every View update.
type snapshot struct {
	partitions map[string]Partition
	datanodes  map[string]Datanode
	writable   []string
	localDC    int8
}

// View is the concurrent-read-safe ClusterView. Updates replace the whole
// snapshot by atomic pointer swap (§5's "safe for concurrent read"
// requirement); there is no in-place mutation of a live snapshot.
type View struct {
	ptr atomic.Value // holds *snapshot
}

// NewView constructs an empty view; call Update before serving traffic.
func NewView(localDC int8) *View {
	v := &View{}
	v.ptr.Store(&snapshot{
		partitions: map[string]Partition{},
		datanodes:  map[string]Datanode{},
		localDC:    localDC,
	})
	return v
}

// Update installs a new, fully-formed snapshot. Meant to be driven by an
// out-of-band cluster-map updater, analogous to a metadata-sync service.
func (v *View) Update(partitions []Partition, datanodes []Datanode) {
	snap := &snapshot{
		partitions: make(map[string]Partition, len(partitions)),
		datanodes:  make(map[string]Datanode, len(datanodes)),
	}
	if prev, ok := v.ptr.Load().(*snapshot); ok && prev != nil {
		snap.localDC = prev.localDC
	}
	for _, p := range partitions {
		cmn.AssertMsg(len(p.Replicas) > 0, "partition %s has no replicas", p.ID)
		snap.partitions[p.ID] = p
		if p.Writable {
			snap.writable = append(snap.writable, p.ID)
		}
	}
	for _, d := range datanodes {
		snap.datanodes[d.ID] = d
	}
	v.ptr.Store(snap)
}

func (v *View) snap() *snapshot { return v.ptr.Load().(*snapshot) }

// Partition looks up a partition by id. The second return is false if the
// cluster map does not (or no longer) contains it.
func (v *View) Partition(id string) (Partition, bool) {
	p, ok := v.snap().partitions[id]
	return p, ok
}

// Datanode resolves a datanode id to its address.
func (v *View) Datanode(id string) (Datanode, bool) {
	d, ok := v.snap().datanodes[id]
	return d, ok
}

// WritablePartitions returns the ids of partitions currently eligible to
// receive new PUTs (§3's invariant: a successful POST's partition must be
// one of these).
func (v *View) WritablePartitions() []string {
	snap := v.snap()
	out := make([]string, len(snap.writable))
	copy(out, snap.writable)
	return out
}

// LocalDatacenter returns the datacenter id this frontend instance serves.
func (v *View) LocalDatacenter() int8 {
	return v.snap().localDC
}

// PeersOf returns the other datanode addresses that share a partition with
// the given (host, port), grounding the GET /peers external interface.
func (v *View) PeersOf(host string, port int) []string {
	snap := v.snap()
	self := fmtHostPort(host, port)
	seen := map[string]struct{}{}
	var out []string
	for _, p := range snap.partitions {
		hasSelf := false
		for _, r := range p.Replicas {
			if dn, ok := snap.datanodes[r.DatanodeID]; ok && dn.Addr == self {
				hasSelf = true
				break
			}
		}
		if !hasSelf {
			continue
		}
		for _, r := range p.Replicas {
			dn, ok := snap.datanodes[r.DatanodeID]
			if !ok || dn.Addr == self {
				continue
			}
			if _, dup := seen[dn.Addr]; dup {
				continue
			}
			seen[dn.Addr] = struct{}{}
			out = append(out, dn.Addr)
		}
	}
	return out
}

func fmtHostPort(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}
