package pipeline

import "github.com/ambrystore/frontend/cmn"

// SecurityGate is the three-hook asynchronous collaborator from §4.4. Each
// hook may fail the request (returning a *cmn.PipelineError) or, per §9's
// "collaborator misbehavior" note, panic -- Pipeline's per-request recover
// converts either into the same terminal error path, never a crash.
type SecurityGate interface {
	// PreProcess runs before id conversion; it may inspect headers only
	// and fail with Unauthorized.
	PreProcess(ctx *Context) error
	// PostProcess runs once the id and target account/container are
	// resolved; it may enforce per-container policy.
	PostProcess(ctx *Context) error
	// ProcessResponse runs after a successful router GET/POST and may
	// mutate ctx.ExtraHeaders (cache-control, content-disposition, etc).
	ProcessResponse(ctx *Context) error
}

// PassthroughGate is the reference no-op SecurityGate: every hook
// succeeds unconditionally. Real deployments supply their own
// authentication/authorization implementation of the same interface.
type PassthroughGate struct{}

func (PassthroughGate) PreProcess(ctx *Context) error      { return nil }
func (PassthroughGate) PostProcess(ctx *Context) error     { return nil }
func (PassthroughGate) ProcessResponse(ctx *Context) error { return nil }

var _ SecurityGate = PassthroughGate{}

// pipelineErrorOrInternal normalizes any error a collaborator returns to a
// *cmn.PipelineError, wrapping anything else as InternalError (§7's
// "runtime exceptions" rule).
func pipelineErrorOrInternal(err error) *cmn.PipelineError {
	if err == nil {
		return nil
	}
	if pe, ok := cmn.AsPipelineError(err); ok {
		return pe
	}
	return cmn.NewPipelineError(cmn.ErrInternalError, err.Error(), err)
}
