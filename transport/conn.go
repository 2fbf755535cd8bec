package transport

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/ambrystore/frontend/cluster"
)

// pendingReq is one request awaiting its framed response on a connection.
type pendingReq struct {
	handle  RequestHandle
	replica cluster.ReplicaID
}

// conn wraps one TCP connection to a datanode. Requests are pipelined:
// the datanode is expected to answer frames in the order they were sent,
// so pending holds a FIFO of outstanding handles.
type conn struct {
	addr string
	nc   net.Conn
	rw   *bufio.ReadWriter

	mu   sync.Mutex
	pend map[RequestHandle]cluster.ReplicaID
	order []RequestHandle

	lastActivity time.Time
	heapIndex    int // maintained by idleCollector's container/heap.Interface
}

func (c *conn) trackPending(h RequestHandle, replica cluster.ReplicaID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pend[h] = replica
	c.order = append(c.order, h)
}

func (c *conn) dropPending(h RequestHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pend, h)
	for i, o := range c.order {
		if o == h {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// popOldestPending removes and returns the oldest still-pending request,
// matching the datanode's in-order response guarantee.
func (c *conn) popOldestPending() (RequestHandle, cluster.ReplicaID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) == 0 {
		return 0, cluster.ReplicaID{}, false
	}
	h := c.order[0]
	c.order = c.order[1:]
	replica, ok := c.pend[h]
	delete(c.pend, h)
	return h, replica, ok
}

func (c *conn) drainPending() []pendingReq {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]pendingReq, 0, len(c.order))
	for _, h := range c.order {
		out = append(out, pendingReq{handle: h, replica: c.pend[h]})
	}
	c.order = nil
	c.pend = map[RequestHandle]cluster.ReplicaID{}
	return out
}

func (c *conn) hasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order) > 0
}
