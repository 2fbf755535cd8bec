package pipeline

import (
	"io"
	"net/http"
	"strconv"

	"github.com/ambrystore/frontend/cmn"
)

// submit is the terminal ResponseSubmitter step (§4.5): it maps the
// stage chain's outcome to an HTTP status and header set, completes the
// caller's ResponseChannel exactly once, and releases ctx's resources.
func (p *Pipeline) submit(ctx *Context, stageErr error) {
	defer ctx.Release()

	status, headers, body := p.buildResponse(ctx, stageErr)

	errCode := ""
	if stageErr != nil {
		if pe, ok := cmn.AsPipelineError(stageErr); ok {
			errCode = string(pe.Code)
		} else {
			errCode = string(cmn.ErrInternalError)
		}
	}
	ctx.Metrics.Finish(p.clk.Now(), errCode)

	safeComplete(ctx.Response, status, headers, body, stageErr)
}

// completeError finishes resp with pe's mapped status and error-code
// header, for rejections that happen before any Context exists (Handle's
// own precondition checks).
func completeError(resp ResponseChannel, pe *cmn.PipelineError) {
	headers := make(http.Header)
	headers.Set("x-ambry-error-code", string(pe.Code))
	safeComplete(resp, pe.HTTPStatus(), headers, nil, pe)
}

// safeComplete calls resp.Complete, and if the caller's implementation
// panics (channel already closed, handler shut down), falls back to
// completing resp directly with the original error (or a synthesized
// ServiceUnavailable when there was none) so the caller still observes
// exactly one terminal outcome. The fallback
// attempt is itself panic-guarded: a second failure is swallowed, since
// there is no further stage left to route it to.
func safeComplete(resp ResponseChannel, status int, headers http.Header, body io.ReadCloser, err error) {
	if completePanicked(resp, status, headers, body, err) {
		if body != nil {
			_ = body.Close()
		}
		fallbackErr := err
		if fallbackErr == nil {
			fallbackErr = cmn.NewPipelineError(cmn.ErrServiceUnavailable, "response submission failed")
		}
		fallbackStatus := http.StatusServiceUnavailable
		fallbackHeaders := make(http.Header)
		if pe, ok := cmn.AsPipelineError(fallbackErr); ok {
			fallbackHeaders.Set("x-ambry-error-code", string(pe.Code))
			fallbackStatus = pe.HTTPStatus()
		}
		_ = completePanicked(resp, fallbackStatus, fallbackHeaders, nil, fallbackErr)
	}
}

func completePanicked(resp ResponseChannel, status int, headers http.Header, body io.ReadCloser, err error) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
		}
	}()
	resp.Complete(status, headers, body, err)
	return false
}

func (p *Pipeline) buildResponse(ctx *Context, stageErr error) (int, http.Header, io.ReadCloser) {
	headers := ctx.ExtraHeaders
	if headers == nil {
		headers = make(http.Header)
	}

	if stageErr != nil {
		pe, ok := cmn.AsPipelineError(stageErr)
		if !ok {
			pe = cmn.NewPipelineError(cmn.ErrInternalError, stageErr.Error(), stageErr)
		}
		headers.Set("x-ambry-error-code", string(pe.Code))
		if pe.Code == cmn.ErrGone {
			if re, ok := cmn.AsRouterError(pe.Cause); !ok || re.Code != cmn.ErrBlobExpired {
				headers.Set("x-ambry-deleted", "true")
			}
		}
		return pe.HTTPStatus(), headers, nil
	}

	if ctx.StatusOverride != 0 {
		status := ctx.StatusOverride
		setPropertyHeaders(headers, ctx)
		if status == http.StatusNotModified {
			closeBody(ctx.ResponseBody)
			ctx.ResponseBody = nil
			return status, headers, nil
		}
		return status, headers, ctx.takeResponseBody()
	}

	switch ctx.Request.Method {
	case MethodPost:
		headers.Set("Location", ctx.ResultBlobID)
		headers.Set("Content-Length", "0")
		if ctx.Properties != nil {
			headers.Set("x-ambry-creation-time", strconv.FormatInt(ctx.Properties.CreationTime.Unix(), 10))
		}
		return http.StatusCreated, headers, nil

	case MethodDelete:
		headers.Set("Content-Length", "0")
		return http.StatusAccepted, headers, nil

	default: // GET, HEAD
		setPropertyHeaders(headers, ctx)
		return http.StatusOK, headers, ctx.takeResponseBody()
	}
}

// setPropertyHeaders copies resolved BlobProperties/user-metadata onto
// the outgoing response, the GET/HEAD counterpart of the x-ambry-* POST
// request headers named in §6.
func setPropertyHeaders(headers http.Header, ctx *Context) {
	if ctx.Properties == nil {
		return
	}
	props := ctx.Properties
	headers.Set("x-ambry-content-type", props.ContentType)
	headers.Set("x-ambry-blob-size", strconv.FormatInt(props.Size, 10))
	headers.Set("x-ambry-service-id", props.ServiceID)
	headers.Set("x-ambry-owner-id", props.OwnerID)
	headers.Set("x-ambry-ttl", strconv.FormatInt(props.TTLSeconds, 10))
	headers.Set("x-ambry-private", strconv.FormatBool(props.Private))
	headers.Set("x-ambry-creation-time", strconv.FormatInt(props.CreationTime.Unix(), 10))
	if len(ctx.UserMetadata) > 0 {
		headers.Set("x-ambry-user-metadata", string(ctx.UserMetadata))
	}
}
