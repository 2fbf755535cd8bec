// Package reqstats provides a per-request metrics tracker: start/end
// time, running byte/RPC counters, and Running()/Finished() predicates
// for a single HTTP request.
package reqstats

import (
	"time"

	"go.uber.org/atomic"
)

// MetricsTracker is the Request Context's metrics scratch space (§3): one
// instance per request, mutated only by the pipeline stage currently
// executing it.
type MetricsTracker struct {
	method     string
	startTime  time.Time
	endTime    time.Time
	bytesIn    atomic.Int64
	bytesOut   atomic.Int64
	replicaRPC atomic.Int64
	errCode    string
}

// NewMetricsTracker starts a tracker for method at now.
func NewMetricsTracker(method string, now time.Time) *MetricsTracker {
	return &MetricsTracker{method: method, startTime: now}
}

func (m *MetricsTracker) Method() string        { return m.method }
func (m *MetricsTracker) StartTime() time.Time  { return m.startTime }
func (m *MetricsTracker) EndTime() time.Time    { return m.endTime }
func (m *MetricsTracker) Running() bool         { return m.endTime.IsZero() }
func (m *MetricsTracker) Finished() bool        { return !m.endTime.IsZero() }
func (m *MetricsTracker) BytesIn() int64        { return m.bytesIn.Load() }
func (m *MetricsTracker) BytesOut() int64       { return m.bytesOut.Load() }
func (m *MetricsTracker) ReplicaRPCCount() int64 { return m.replicaRPC.Load() }
func (m *MetricsTracker) ErrCode() string        { return m.errCode }

func (m *MetricsTracker) AddBytesIn(n int64)  { m.bytesIn.Add(n) }
func (m *MetricsTracker) AddBytesOut(n int64) { m.bytesOut.Add(n) }
func (m *MetricsTracker) AddReplicaRPC()      { m.replicaRPC.Add(1) }

// Finish records the terminal outcome and end time; idempotent so any
// stage on the error path can call it without double-booking latency.
func (m *MetricsTracker) Finish(now time.Time, errCode string) {
	if !m.endTime.IsZero() {
		return
	}
	m.endTime = now
	m.errCode = errCode
}

// Latency returns the request's wall-clock duration once finished; zero
// while still running.
func (m *MetricsTracker) Latency() time.Duration {
	if m.endTime.IsZero() {
		return 0
	}
	return m.endTime.Sub(m.startTime)
}
