package cmn

import (
	"sync/atomic"
	"time"
)

// RouterConfig holds every router/pipeline tunable named in the design:
// fan-out parallelism, per-operation success targets, and the timeouts
// that the logical clock enforces.
type RouterConfig struct {
	// Parallelism is the maximum number of replicas contacted
	// concurrently by one ReplicaOperation.
	Parallelism int

	// DeleteSuccessTarget, GetSuccessTarget, PutSuccessTarget are the
	// minimum successful replica responses required to declare an
	// operation of that kind successful.
	DeleteSuccessTarget int
	GetSuccessTarget    int
	PutSuccessTarget    int

	// OperationTimeout bounds the whole router operation; PerReplicaTimeout
	// bounds a single in-flight replica request.
	OperationTimeout   time.Duration
	PerReplicaTimeout  time.Duration
	DriverTickInterval time.Duration

	// MaxBlobSize rejects a PUT outright (BlobTooLarge) without
	// contacting any replica.
	MaxBlobSize int64
}

// DefaultRouterConfig mirrors the typical values named in the design doc
// (parallelism 3, a quorum-sized success target).
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Parallelism:         3,
		DeleteSuccessTarget: 2,
		GetSuccessTarget:    1,
		PutSuccessTarget:    2,
		OperationTimeout:    10 * time.Second,
		PerReplicaTimeout:   2 * time.Second,
		DriverTickInterval:  5 * time.Millisecond,
		MaxBlobSize:         4 << 30, // 4GiB
	}
}

// globalConfigOwner is a single atomically-swappable config instance
// shared by every package that needs a tunable, without threading a
// *Config through every call.
type globalConfigOwner struct {
	ptr atomic.Value // holds *RouterConfig
}

// GCO is the process-wide config owner. Set once at startup via Put;
// read via Get from any goroutine without locking.
var GCO = &globalConfigOwner{}

func init() {
	cfg := DefaultRouterConfig()
	GCO.ptr.Store(&cfg)
}

// Get returns the current config snapshot. Never returns nil.
func (o *globalConfigOwner) Get() *RouterConfig {
	return o.ptr.Load().(*RouterConfig)
}

// Put installs a new config snapshot, visible to subsequent Get calls.
func (o *globalConfigOwner) Put(cfg RouterConfig) {
	o.ptr.Store(&cfg)
}
