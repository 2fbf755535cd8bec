// Package pipeline orchestrates a single REST request from parsed HTTP
// request to terminal response, the way a broadcast-then-collect-results
// flow sequences a cluster operation's stages -- generalized here from a
// cluster broadcast to a staged security/id/router chain over one blob
// request.
package pipeline

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ambrystore/frontend/cmn"
	"github.com/ambrystore/frontend/reqstats"
)

// Method is the subset of HTTP methods the pipeline accepts.
type Method string

const (
	MethodGet    Method = "GET"
	MethodHead   Method = "HEAD"
	MethodPost   Method = "POST"
	MethodDelete Method = "DELETE"
)

// Internal request-context argument keys (§4.1 rule 1): these must never
// appear as literal header names on the wire.
const (
	ArgTargetAccount   = "targetAccount"
	ArgTargetContainer = "targetContainer"
)

// Request is the parsed inbound REST request handed to Pipeline.Handle,
// built by httpapi (the wire-level HTTP parser named as an external
// collaborator in §1).
type Request struct {
	Method       Method
	BlobIDString string // path blob id; empty for POST
	SubResource  cmn.SubResource
	Headers      http.Header
	Body         io.ReadCloser
	ContentLength int64

	// GET/HEAD
	GetOption       cmn.GetOption
	RangeStart      int64 // -1: no range requested
	RangeEnd        int64 // -1: open-ended or absent
	IfModifiedSince time.Time // zero value: header absent

	// POST
	ServiceID       string
	ContentType     string
	TTLSeconds      int64
	Private         bool
	OwnerID         string
	TargetAccount   *string // nil: header absent
	TargetContainer *string
	UserMetadata    map[string]string // x-ambry-um-<key> -> value
}

// ResponseChannel is completed exactly once by ResponseSubmitter (§4.5).
type ResponseChannel interface {
	Complete(status int, headers http.Header, body io.ReadCloser, err error)
}

// Context is the per-request scratch space threaded through every stage
// (§3): resolved target account/container, the metrics tracker, and the
// release-once lifecycle flag.
type Context struct {
	Request  *Request
	Response ResponseChannel

	mu       sync.Mutex
	args     map[string]interface{}
	released bool

	// ResolvedBlobIDString is the canonical blob id after idConvertForward
	// runs; stages downstream of id conversion read this instead of
	// Request.BlobIDString.
	ResolvedBlobIDString string

	Metrics *reqstats.MetricsTracker

	// Populated by routerGet/routerPut on success; StatusOverride lets a
	// stage (If-Modified-Since, Range) pick a non-default success status.
	ResponseBody   io.ReadCloser
	Properties     *cmn.BlobProperties
	UserMetadata   []byte
	ResultBlobID   string
	StatusOverride int
	ExtraHeaders   http.Header
}

// NewContext constructs a fresh per-request Context.
func NewContext(req *Request, resp ResponseChannel, now time.Time) *Context {
	return &Context{
		Request:      req,
		Response:     resp,
		args:         make(map[string]interface{}),
		Metrics:      reqstats.NewMetricsTracker(string(req.Method), now),
		ExtraHeaders: make(http.Header),
	}
}

func (c *Context) SetArg(key string, val interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.args[key] = val
}

func (c *Context) Arg(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.args[key]
	return v, ok
}

func (c *Context) TargetAccount() cmn.Account {
	v, _ := c.Arg(ArgTargetAccount)
	a, _ := v.(cmn.Account)
	return a
}

func (c *Context) TargetContainer() cmn.Container {
	v, _ := c.Arg(ArgTargetContainer)
	ct, _ := v.(cmn.Container)
	return ct
}

// takeResponseBody hands ownership of the response body to the caller
// (the submitter's ResponseChannel) and clears it from ctx, so Release
// won't race the HTTP layer's still-in-progress stream copy by closing
// the same reader out from under it.
func (c *Context) takeResponseBody() io.ReadCloser {
	c.mu.Lock()
	defer c.mu.Unlock()
	body := c.ResponseBody
	c.ResponseBody = nil
	return body
}

// Release closes both body streams exactly once; close errors are
// swallowed per §4.1's resource release policy -- the primary outcome
// (the error, if any, passed to Submit) is what surfaces to the client.
func (c *Context) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	c.mu.Unlock()

	if c.Request != nil && c.Request.Body != nil {
		_ = c.Request.Body.Close()
	}
	if c.ResponseBody != nil {
		_ = c.ResponseBody.Close()
	}
}
