package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/ambrystore/frontend/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// wrapErr normalizes any error a SecurityGate or IdConverter collaborator
// returns to a *cmn.PipelineError (§7's "runtime exceptions" rule); nil
// passes through untouched so callers can return it directly.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if pe, ok := cmn.AsPipelineError(err); ok {
		return pe
	}
	return cmn.NewPipelineError(cmn.ErrInternalError, err.Error(), err)
}

// wrapRouterErr applies §7's router-to-pipeline error mapping table,
// falling back to InternalError for anything the router didn't itself
// produce as a *cmn.RouterError.
func wrapRouterErr(err error) error {
	re, ok := cmn.AsRouterError(err)
	if !ok {
		return cmn.NewPipelineError(cmn.ErrInternalError, err.Error(), err)
	}
	return cmn.MapRouterError(re)
}

func (p *Pipeline) preSecurity(ctx *Context) error  { return wrapErr(p.gate.PreProcess(ctx)) }
func (p *Pipeline) postSecurity(ctx *Context) error { return wrapErr(p.gate.PostProcess(ctx)) }

func (p *Pipeline) postSecurityResponse(ctx *Context) error {
	return wrapErr(p.gate.ProcessResponse(ctx))
}

// idConvertForward runs before account/container resolution on GET/HEAD/
// DELETE (§4.1): it resolves whatever alias the client supplied to the
// canonical blob id every downstream stage operates on.
func (p *Pipeline) idConvertForward(ctx *Context) error {
	converted, err := p.idconv.Convert(ctx, ctx.Request.BlobIDString)
	if err != nil {
		return wrapErr(err)
	}
	ctx.ResolvedBlobIDString = converted
	return nil
}

// idConvertReverse runs after a successful POST (§4.1): the router always
// mints a canonical id, and the converter gets a chance to register an
// alias and hand back whatever external form the client should see.
func (p *Pipeline) idConvertReverse(ctx *Context) error {
	converted, err := p.idconv.Convert(ctx, ctx.ResultBlobID)
	if err != nil {
		return wrapErr(err)
	}
	ctx.ResultBlobID = converted
	return nil
}

func (p *Pipeline) routerDelete(ctx *Context) error {
	err := <-p.router.Delete(ctx.ResolvedBlobIDString)
	ctx.Metrics.AddReplicaRPC()
	if err != nil {
		return wrapRouterErr(err)
	}
	return nil
}

func (p *Pipeline) routerGet(ctx *Context) error {
	if ctx.Request.Method == MethodHead {
		return p.routerGetMetadataOnly(ctx)
	}
	switch ctx.Request.SubResource {
	case cmn.SubResourceReplicas:
		return p.routerGetReplicas(ctx)
	case cmn.SubResourceBlobInfo, cmn.SubResourceUserMetadata:
		return p.routerGetMetadataOnly(ctx)
	default:
		return p.routerGetBody(ctx)
	}
}

func (p *Pipeline) routerGetBody(ctx *Context) error {
	req := ctx.Request
	outcome := <-p.router.Get(ctx.ResolvedBlobIDString, req.GetOption, req.RangeStart, req.RangeEnd)
	ctx.Metrics.AddReplicaRPC()
	if outcome.Err != nil {
		return wrapRouterErr(outcome.Err)
	}

	if !req.IfModifiedSince.IsZero() && !outcome.Result.Properties.CreationTime.After(req.IfModifiedSince) {
		closeBody(outcome.Result.Body)
		ctx.StatusOverride = http.StatusNotModified
		ctx.Properties = &outcome.Result.Properties
		return nil
	}

	ctx.ResponseBody = outcome.Result.Body
	ctx.Properties = &outcome.Result.Properties
	ctx.UserMetadata = outcome.Result.UserMetadata
	if req.RangeStart >= 0 {
		end := req.RangeEnd
		if end < 0 {
			end = outcome.Result.Properties.Size - 1
		}
		ctx.StatusOverride = http.StatusPartialContent
		ctx.ExtraHeaders.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", req.RangeStart, end, outcome.Result.Properties.Size))
	}
	return nil
}

func (p *Pipeline) routerGetMetadataOnly(ctx *Context) error {
	req := ctx.Request
	outcome := <-p.router.Get(ctx.ResolvedBlobIDString, req.GetOption, -1, -1)
	ctx.Metrics.AddReplicaRPC()
	if outcome.Err != nil {
		return wrapRouterErr(outcome.Err)
	}
	closeBody(outcome.Result.Body)
	ctx.Properties = &outcome.Result.Properties
	ctx.UserMetadata = outcome.Result.UserMetadata
	return nil
}

type replicasResponse struct {
	Replicas string `json:"replicas"`
}

func (p *Pipeline) routerGetReplicas(ctx *Context) error {
	id, err := cmn.DecodeBlobID(ctx.ResolvedBlobIDString)
	if err != nil {
		return cmn.NewPipelineError(cmn.ErrBadRequest, "invalid blob id", err)
	}
	partition, ok := p.view.Partition(id.PartitionID)
	if !ok {
		return cmn.NewPipelineError(cmn.ErrNotFound, "unknown partition")
	}
	replicas := make([]string, len(partition.Replicas))
	for i, r := range partition.Replicas {
		replicas[i] = r.DatanodeID
	}
	list, err := json.Marshal(replicas)
	if err != nil {
		return cmn.NewPipelineError(cmn.ErrInternalError, "failed marshaling replica list", err)
	}
	buf, err := json.Marshal(replicasResponse{Replicas: string(list)})
	if err != nil {
		return cmn.NewPipelineError(cmn.ErrInternalError, "failed marshaling replica list", err)
	}
	ctx.ResponseBody = io.NopCloser(bytes.NewReader(buf))
	ctx.ExtraHeaders.Set("Content-Type", "application/json")
	return nil
}

func (p *Pipeline) routerPut(ctx *Context) error {
	req := ctx.Request
	acct := ctx.TargetAccount()
	cont := ctx.TargetContainer()

	props := cmn.BlobProperties{
		Size:         req.ContentLength,
		ContentType:  req.ContentType,
		ServiceID:    req.ServiceID,
		OwnerID:      req.OwnerID,
		TTLSeconds:   req.TTLSeconds,
		CreationTime: p.clk.Now(),
		Private:      req.Private,
		AccountID:    acct.ID,
		ContainerID:  cont.ID,
	}
	userMeta, err := json.Marshal(req.UserMetadata)
	if err != nil {
		return cmn.NewPipelineError(cmn.ErrInternalError, "failed marshaling user metadata", err)
	}

	outcome := <-p.router.Put(props, userMeta, req.Body)
	ctx.Metrics.AddReplicaRPC()
	if outcome.Err != nil {
		return wrapRouterErr(outcome.Err)
	}
	ctx.ResultBlobID = outcome.Result.BlobIDString
	ctx.Properties = &props
	return nil
}

func closeBody(body io.ReadCloser) {
	if body != nil {
		body.Close()
	}
}
