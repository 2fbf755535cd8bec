// idleCollector tears down per-datanode connections that have gone idle,
// adapted from a container/heap-ordered, ticker-driven stream collector
// with an add/remove control channel, but ordered by connection idle
// deadline instead of stream-idle ticks, and scoped to plain net.Conn
// teardown instead of stream-session state transitions.
/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"container/heap"
	"time"

	"github.com/golang/glog"
)

const (
	tickUnit       = time.Second
	idleConnOut    = 30 * time.Second
)

type ctrl struct {
	cn  *conn
	add bool
}

// idleCollector is a per-Client singleton goroutine that closes
// connections idle longer than idleConnOut.
type idleCollector struct {
	client *Client
	ctrlCh chan ctrl
	heapv  []*conn // min-heap ordered by lastActivity
	ticker *time.Ticker
}

func newIdleCollector(c *Client) *idleCollector {
	ic := &idleCollector{
		client: c,
		ctrlCh: make(chan ctrl, 64),
		heapv:  make([]*conn, 0, 16),
	}
	heap.Init(ic)
	return ic
}

// touch registers cn with the collector (if new) or refreshes its
// last-activity time (if already tracked).
func (ic *idleCollector) touch(cn *conn) {
	cn.lastActivity = time.Now()
	select {
	case ic.ctrlCh <- ctrl{cn: cn, add: true}:
	default:
		glog.Warningf("transport: idle collector control channel full")
	}
}

func (ic *idleCollector) run() {
	ic.ticker = time.NewTicker(tickUnit)
	defer ic.ticker.Stop()
	tracked := make(map[*conn]bool)
	for {
		select {
		case <-ic.ticker.C:
			ic.sweep()
		case c, ok := <-ic.ctrlCh:
			if !ok {
				return
			}
			if c.add {
				if tracked[c.cn] {
					heap.Fix(ic, c.cn.heapIndex)
				} else {
					tracked[c.cn] = true
					heap.Push(ic, c.cn)
				}
			}
		case <-ic.client.stopCh.Listen():
			return
		}
	}
}

func (ic *idleCollector) sweep() {
	now := time.Now()
	for len(ic.heapv) > 0 {
		cn := ic.heapv[0]
		if now.Sub(cn.lastActivity) < idleConnOut {
			break
		}
		if cn.hasPending() {
			// still busy; push its deadline out and re-heapify rather than close
			cn.lastActivity = now
			heap.Fix(ic, cn.heapIndex)
			continue
		}
		heap.Pop(ic)
		ic.client.closeConn(cn.addr)
	}
}

// min-heap by lastActivity, ascending (oldest activity first).
func (ic *idleCollector) Len() int { return len(ic.heapv) }

func (ic *idleCollector) Less(i, j int) bool {
	return ic.heapv[i].lastActivity.Before(ic.heapv[j].lastActivity)
}

func (ic *idleCollector) Swap(i, j int) {
	ic.heapv[i], ic.heapv[j] = ic.heapv[j], ic.heapv[i]
	ic.heapv[i].heapIndex = i
	ic.heapv[j].heapIndex = j
}

func (ic *idleCollector) Push(x interface{}) {
	cn := x.(*conn)
	cn.heapIndex = len(ic.heapv)
	ic.heapv = append(ic.heapv, cn)
}

func (ic *idleCollector) Pop() interface{} {
	old := ic.heapv
	n := len(old)
	cn := old[n-1]
	ic.heapv = old[:n-1]
	return cn
}
