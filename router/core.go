package router

import (
	"sync"
	"time"

	"github.com/golang/glog"
	"go.uber.org/atomic"

	"github.com/ambrystore/frontend/clock"
	"github.com/ambrystore/frontend/cluster"
	"github.com/ambrystore/frontend/cmn"
	"github.com/ambrystore/frontend/transport"
)

// operation is the common shape every ReplicaOperation (delete/get/put)
// implements so RouterCore can drive it generically: issue further
// replica requests when there's room, dispatch a matched transport
// response, and notice its own deadline -- mirroring a small-common-base-
// plus-per-kind-Run shape generalized from a cluster xaction to a
// per-blob router operation.
type operation interface {
	id() uint64
	pump(now time.Time)
	handleResponse(resp transport.Response)
	terminal() bool
}

// Core owns every in-flight ReplicaOperation and runs the single driver
// loop that polls ReplicaTransport and routes each response to its owning
// operation, per §4.2's "single driver loop" and §9's single-completion
// discipline on the in-flight registry.
type Core struct {
	view  *cluster.View
	xport transport.ReplicaTransport
	clk   clock.Clock

	mu          sync.Mutex
	ops         map[uint64]operation
	handleOwner map[transport.RequestHandle]uint64
	nextOpID    uint64
	closed      bool

	putRoundRobin atomic.Uint64

	stopCh *cmn.StopCh
	doneCh chan struct{}
}

// NewCore constructs a Core and starts its driver loop.
func NewCore(view *cluster.View, xport transport.ReplicaTransport, clk clock.Clock) *Core {
	c := &Core{
		view:        view,
		xport:       xport,
		clk:         clk,
		ops:         make(map[uint64]operation),
		handleOwner: make(map[transport.RequestHandle]uint64),
		stopCh:      cmn.NewStopCh(),
		doneCh:      make(chan struct{}),
	}
	go c.driverLoop()
	return c
}

// Close transitions every running operation to Aborted with RouterClosed
// and rejects any further submission with the same code (§4.2).
func (c *Core) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.stopCh.Close()
	<-c.doneCh
}

func (c *Core) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// registerOp inserts op into the in-flight registry and assigns it an id,
// the "insert once at dispatch" half of §5's single-completion discipline.
func (c *Core) registerOp(makeOp func(id uint64, registerHandle func(transport.RequestHandle)) operation) (operation, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, cmn.NewRouterError(cmn.ErrRouterClosed, "router is closed")
	}
	c.nextOpID++
	id := c.nextOpID
	c.mu.Unlock()

	registerHandle := func(h transport.RequestHandle) {
		c.mu.Lock()
		c.handleOwner[h] = id
		c.mu.Unlock()
	}
	op := makeOp(id, registerHandle)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, cmn.NewRouterError(cmn.ErrRouterClosed, "router is closed")
	}
	c.ops[id] = op
	c.mu.Unlock()
	return op, nil
}

// removeOp deletes op's entry from the in-flight registry, the "removed
// once at terminal transition" half of §5's discipline. Safe to call more
// than once; only the first call has any effect.
func (c *Core) removeOp(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ops, id)
}

func (c *Core) driverLoop() {
	defer close(c.doneCh)
	cfg := cmn.GCO.Get()
	ticker := time.NewTicker(cfg.DriverTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.tick()
		case <-c.stopCh.Listen():
			c.abortAll()
			return
		}
	}
}

// tick polls the transport once, routes the unordered batch of responses
// to their owning operations, then gives every still-running operation a
// chance to issue its next batch and check its own deadline (§4.2's
// "fairness/ordering": responses are taken as an unordered batch).
func (c *Core) tick() {
	now := c.clk.Now()
	responses := c.xport.Poll()
	for _, resp := range responses {
		c.mu.Lock()
		opID, ok := c.handleOwner[resp.Handle]
		if ok {
			delete(c.handleOwner, resp.Handle)
		}
		op := c.ops[opID]
		c.mu.Unlock()
		if !ok || op == nil {
			continue // late response for an operation that has already gone terminal
		}
		op.handleResponse(resp)
	}

	c.mu.Lock()
	snapshot := make([]operation, 0, len(c.ops))
	for _, op := range c.ops {
		snapshot = append(snapshot, op)
	}
	c.mu.Unlock()

	for _, op := range snapshot {
		op.pump(now)
		if op.terminal() {
			c.removeOp(op.id())
		}
	}
}

func (c *Core) abortAll() {
	c.mu.Lock()
	ops := make([]operation, 0, len(c.ops))
	for _, op := range c.ops {
		ops = append(ops, op)
	}
	c.ops = map[uint64]operation{}
	c.handleOwner = map[transport.RequestHandle]uint64{}
	c.mu.Unlock()

	for _, op := range ops {
		if a, ok := op.(aborter); ok {
			a.abort(cmn.NewRouterError(cmn.ErrRouterClosed, "router closed"))
		}
	}
	glog.Infof("router: closed, aborted %d in-flight operations", len(ops))
}

// aborter is implemented by every ReplicaOperation; separated from
// operation so RouterCore's generic pump/handleResponse loop doesn't need
// to know about abort reasons.
type aborter interface {
	abort(err error)
}
