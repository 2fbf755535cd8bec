package transport

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/ambrystore/frontend/cluster"
	"github.com/ambrystore/frontend/cmn"
)

// RequestHandle identifies one outstanding Send call so its eventual
// Response can be matched back to the caller.
type RequestHandle uint64

// Response is what Poll delivers for one completed (or failed) replica
// request.
type Response struct {
	Handle       RequestHandle
	Replica      cluster.ReplicaID
	Code         cmn.ReplicaErrorCode
	Properties   cmn.BlobProperties
	UserMetadata []byte
	Body         io.ReadCloser // non-nil only for a successful GET
}

// ReplicaTransport is the narrow, non-blocking interface RouterCore
// consumes (§6): send a framed request to a specific datanode, and poll
// for whatever responses have arrived since the last call. Production
// code depends on this interface, not on *Client, so router tests run
// against an in-memory fake.
type ReplicaTransport interface {
	Send(replica cluster.ReplicaID, addr string, frame Frame) (RequestHandle, error)
	Poll() []Response
	Close()
}

// Client is the reference ReplicaTransport: one TCP connection per
// datanode, reused across requests, with idle connections torn down by a
// background collector (collect.go), keeping stream lifecycle separate
// from message framing (frame.go).
type Client struct {
	nextHandle atomic.Uint64

	mu    sync.Mutex
	conns map[string]*conn // datanode address -> connection

	responses chan Response

	collector *idleCollector
	stopCh    *cmn.StopCh
}

// NewClient constructs a Client and starts its idle-connection collector.
func NewClient() *Client {
	c := &Client{
		conns:     make(map[string]*conn),
		responses: make(chan Response, 1024),
		stopCh:    cmn.NewStopCh(),
	}
	c.collector = newIdleCollector(c)
	go c.collector.run()
	return c
}

// Send dials (or reuses) a connection to addr and writes frame, tagging
// the pending request with an opaque handle so the eventual response can
// be attributed to the right ReplicaOperation via Poll.
func (c *Client) Send(replica cluster.ReplicaID, addr string, frame Frame) (RequestHandle, error) {
	h := RequestHandle(c.nextHandle.Add(1))

	cn, err := c.getConn(addr)
	if err != nil {
		c.deliverFailure(h, replica, cmn.ClassifyTransportError(err))
		return h, nil
	}

	cn.trackPending(h, replica)
	if err := WriteFrame(cn.rw, frame); err != nil {
		cn.dropPending(h)
		c.closeConn(addr)
		c.deliverFailure(h, replica, cmn.ClassifyTransportError(errors.Wrapf(err, "write frame to %s", addr)))
		return h, nil
	}
	if err := cn.rw.Flush(); err != nil {
		cn.dropPending(h)
		c.closeConn(addr)
		c.deliverFailure(h, replica, cmn.ClassifyTransportError(errors.Wrapf(err, "flush %s", addr)))
		return h, nil
	}
	c.collector.touch(cn)
	return h, nil
}

// Poll drains whatever responses have arrived since the last call,
// without blocking. RouterCore's driver loop calls this once per tick.
func (c *Client) Poll() []Response {
	var out []Response
	for {
		select {
		case r := <-c.responses:
			out = append(out, r)
		default:
			return out
		}
	}
}

// Close tears down every connection and stops the collector.
func (c *Client) Close() {
	c.stopCh.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, cn := range c.conns {
		cn.nc.Close()
		delete(c.conns, addr)
	}
}

func (c *Client) deliverFailure(h RequestHandle, replica cluster.ReplicaID, code cmn.ReplicaErrorCode) {
	select {
	case c.responses <- Response{Handle: h, Replica: replica, Code: code}:
	default:
		glog.Warningf("transport: response queue full, dropping failure for %v", replica)
	}
}

func (c *Client) getConn(addr string) (*conn, error) {
	c.mu.Lock()
	if cn, ok := c.conns[addr]; ok {
		c.mu.Unlock()
		return cn, nil
	}
	c.mu.Unlock()

	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial datanode %s", addr)
	}
	cn := &conn{
		addr: addr,
		nc:   nc,
		rw:   bufio.NewReadWriter(bufio.NewReader(nc), bufio.NewWriter(nc)),
		pend: make(map[RequestHandle]cluster.ReplicaID),
	}
	go c.readLoop(cn)

	c.mu.Lock()
	c.conns[addr] = cn
	c.mu.Unlock()
	return cn, nil
}

func (c *Client) closeConn(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cn, ok := c.conns[addr]; ok {
		cn.nc.Close()
		delete(c.conns, addr)
	}
}

// readLoop pumps framed responses off one connection, matching each one
// to its pending handle by arrival order (requests are pipelined down a
// connection and the datanode answers them in the order they were sent,
// so the oldest pending handle owns the next response).
func (c *Client) readLoop(cn *conn) {
	for {
		hdr, err := ReadResponseHeader(cn.rw)
		if err != nil {
			c.failAllPending(cn, cmn.ClassifyTransportError(errors.Wrapf(err, "read response header from %s", cn.addr)))
			return
		}
		h, replica, ok := cn.popOldestPending()
		if !ok {
			glog.Warningf("transport: response with no pending request on %s", cn.addr)
			continue
		}
		var body io.ReadCloser
		if hdr.BodyLen >= 0 {
			body = io.NopCloser(io.LimitReader(cn.rw, hdr.BodyLen))
		}
		c.responses <- Response{
			Handle: h, Replica: replica, Code: hdr.Code,
			Properties: hdr.Properties, UserMetadata: hdr.UserMetadata, Body: body,
		}
	}
}

func (c *Client) failAllPending(cn *conn, code cmn.ReplicaErrorCode) {
	for _, r := range cn.drainPending() {
		c.deliverFailure(r.handle, r.replica, code)
	}
	c.closeConn(cn.addr)
}
