package pipeline

import (
	"fmt"
	"io"

	"github.com/golang/glog"
	"go.uber.org/atomic"

	"github.com/ambrystore/frontend/accountdir"
	"github.com/ambrystore/frontend/clock"
	"github.com/ambrystore/frontend/cluster"
	"github.com/ambrystore/frontend/cmn"
	"github.com/ambrystore/frontend/router"
)

// stageFunc is one step of a request's stage sequence (§4.1's stage
// tables); returning a non-nil error stops the sequence and routes
// straight to submission.
type stageFunc func(ctx *Context) error

// ReplicaRouter is the narrow slice of router.Core that Pipeline depends
// on (§6): production code wires in a real *router.Core, while tests
// substitute a fake that returns scripted outcomes without running any
// replica fan-out at all.
type ReplicaRouter interface {
	Delete(blobIDString string) <-chan error
	Get(blobIDString string, opt cmn.GetOption, rangeStart, rangeEnd int64) <-chan router.GetOutcome
	Put(properties cmn.BlobProperties, userMetadata []byte, body io.Reader) <-chan router.PutOutcome
}

// Pipeline is the staged-async request orchestrator (§4): a staged
// broadcast-then-react flow generalized from cluster-broadcast stages to
// the security/id/router stage sequence a single blob request runs
// through. Every Handle call spawns its own goroutine and never blocks
// the caller, the idiomatic-Go
// substitute for the continuation-passing chain the design describes --
// the calling goroutine (httpapi's handler) returns immediately and the
// response is delivered later through ResponseChannel.
type Pipeline struct {
	router ReplicaRouter
	dir    accountdir.Directory
	view   *cluster.View
	gate   SecurityGate
	idconv IdConverter
	clk    clock.Clock

	started atomic.Bool
}

// New constructs a Pipeline, already started. gate and idconv may be nil,
// in which case PassthroughGate and IdentityConverter stand in.
func New(core ReplicaRouter, dir accountdir.Directory, view *cluster.View, gate SecurityGate, idconv IdConverter, clk clock.Clock) *Pipeline {
	if gate == nil {
		gate = PassthroughGate{}
	}
	if idconv == nil {
		idconv = IdentityConverter{}
	}
	p := &Pipeline{router: core, dir: dir, view: view, gate: gate, idconv: idconv, clk: clk}
	p.started.Store(true)
	return p
}

// Stop marks the pipeline as no longer accepting requests. Calls to Handle
// after Stop complete with ServiceUnavailable instead of running any
// stages; in-flight requests started before Stop are unaffected.
func (p *Pipeline) Stop() {
	p.started.Store(false)
}

// Handle accepts one parsed REST request and asynchronously drives it to
// completion, delivering the outcome to resp exactly once (§4.1, §4.5).
// It never blocks: every request runs in its own goroutine so a slow or
// stuck request can't stall another caller's Handle.
//
// Handle validates its own preconditions before any per-request Context
// exists: a nil resp can't be completed at all and is just logged; a nil
// req or a not-yet-started pipeline complete resp directly with
// InvalidArgument/ServiceUnavailable, never touching req.Method.
func (p *Pipeline) Handle(req *Request, resp ResponseChannel) {
	if resp == nil {
		glog.Errorf("pipeline: Handle called with nil response channel, dropping request")
		return
	}
	if req == nil {
		completeError(resp, cmn.NewPipelineError(cmn.ErrInvalidArgument, "nil request"))
		return
	}
	if !p.started.Load() {
		completeError(resp, cmn.NewPipelineError(cmn.ErrServiceUnavailable, "pipeline not started"))
		return
	}

	ctx := NewContext(req, resp, p.clk.Now())
	go p.run(ctx)
}

// run drives ctx through its method's stage sequence to submission. A
// panic anywhere in a stage or a collaborator it calls is converted to a
// terminal InternalError response rather than crashing the process
// (§9's "collaborator misbehavior" rule) -- the one place in the
// pipeline that must never itself fail.
func (p *Pipeline) run(ctx *Context) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("pipeline: recovered panic processing %s %s: %v", ctx.Request.Method, ctx.Request.BlobIDString, r)
			p.submit(ctx, cmn.NewPipelineError(cmn.ErrInternalError, fmt.Sprintf("panic: %v", r)))
		}
	}()

	var stages []stageFunc
	switch ctx.Request.Method {
	case MethodGet, MethodHead:
		stages = []stageFunc{p.preSecurity, p.idConvertForward, p.resolveAccountContainer, p.postSecurity, p.routerGet, p.postSecurityResponse}
	case MethodDelete:
		stages = []stageFunc{p.preSecurity, p.idConvertForward, p.resolveAccountContainer, p.postSecurity, p.routerDelete}
	case MethodPost:
		stages = []stageFunc{p.preSecurity, p.accountContainerInject, p.postSecurity, p.routerPut, p.idConvertReverse, p.postSecurityResponse}
	default:
		p.submit(ctx, cmn.NewPipelineError(cmn.ErrUnsupportedHTTPMethod, string(ctx.Request.Method)))
		return
	}

	for _, stage := range stages {
		if err := stage(ctx); err != nil {
			p.submit(ctx, err)
			return
		}
	}
	p.submit(ctx, nil)
}
