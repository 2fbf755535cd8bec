package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/go-chi/chi/v5"

	"github.com/ambrystore/frontend/cluster"
	"github.com/ambrystore/frontend/cmn"
	"github.com/ambrystore/frontend/pipeline"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var errInvalidRange = errors.New("invalid range header")

// Handler wires the §6 HTTP surface onto a Pipeline. localHost/localPort
// identify this frontend instance's own advertised address for the
// GET /peers lookup, which operates directly on the cluster view rather
// than through Pipeline since it isn't blob-id-shaped.
type Handler struct {
	pipe       *pipeline.Pipeline
	view       *cluster.View
	localHost  string
	localPort  int
}

// New builds the chi.Router serving the design's REST surface.
func New(pipe *pipeline.Pipeline, view *cluster.View, localHost string, localPort int) http.Handler {
	h := &Handler{pipe: pipe, view: view, localHost: localHost, localPort: localPort}

	r := chi.NewRouter()
	r.Get("/peers", h.handlePeers)
	r.Post("/", h.handlePost)
	r.Get("/{blobID}", h.handleGet)
	r.Get("/{blobID}/{subResource}", h.handleGet)
	r.Head("/{blobID}", h.handleHead)
	r.Head("/{blobID}/{subResource}", h.handleHead)
	r.Delete("/{blobID}", h.handleDelete)
	r.MethodFunc(http.MethodPut, "/*", methodNotAllowed)
	return r
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("x-ambry-error-code", string(cmn.ErrUnsupportedHTTPMethod))
	w.WriteHeader(http.StatusMethodNotAllowed)
}

func (h *Handler) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers := h.view.PeersOf(h.localHost, h.localPort)
	buf, err := json.Marshal(struct {
		Peers []string `json:"peers"`
	}{Peers: peers})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(buf)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, pipeline.MethodGet)
}

func (h *Handler) handleHead(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, pipeline.MethodHead)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, pipeline.MethodDelete)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, pipeline.MethodPost)
}

// serve parses the HTTP request into a pipeline.Request, hands it to the
// pipeline, and blocks this handler goroutine -- synchronous net/http
// requires it -- until the pipeline's asynchronous completion arrives.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, method pipeline.Method) {
	req, perr := parseRequest(r, method)
	if perr != nil {
		writePipelineError(w, perr)
		return
	}

	waiter := newResponseWaiter()
	h.pipe.Handle(req, waiter)
	waiter.wait()

	writeResponse(w, waiter)
}

func parseRequest(r *http.Request, method pipeline.Method) (*pipeline.Request, *cmn.PipelineError) {
	req := &pipeline.Request{
		Method:        method,
		Headers:       r.Header,
		Body:          r.Body,
		ContentLength: r.ContentLength,
		RangeStart:    -1,
		RangeEnd:      -1,
	}

	blobID := chi.URLParam(r, "blobID")
	req.BlobIDString = blobID

	if sub := chi.URLParam(r, "subResource"); sub != "" {
		sr, ok := cmn.ParseSubResource(sub)
		if !ok {
			return nil, cmn.NewPipelineError(cmn.ErrInvalidArgument, "unrecognized sub-resource: "+sub)
		}
		req.SubResource = sr
	}

	switch method {
	case pipeline.MethodGet, pipeline.MethodHead:
		opt, ok := cmn.ParseGetOption(r.Header.Get("x-ambry-get-option"))
		if !ok {
			return nil, cmn.NewPipelineError(cmn.ErrInvalidArgument, "invalid x-ambry-get-option")
		}
		req.GetOption = opt

		if rangeHdr := r.Header.Get("Range"); rangeHdr != "" {
			start, end, err := parseRange(rangeHdr)
			if err != nil {
				return nil, cmn.NewPipelineError(cmn.ErrInvalidArgument, "invalid Range header", err)
			}
			req.RangeStart, req.RangeEnd = start, end
		}
		if ims := r.Header.Get("If-Modified-Since"); ims != "" {
			t, err := http.ParseTime(ims)
			if err == nil {
				req.IfModifiedSince = t
			}
		}

	case pipeline.MethodPost:
		req.ServiceID = r.Header.Get("x-ambry-service-id")
		req.ContentType = r.Header.Get("x-ambry-content-type")
		req.OwnerID = r.Header.Get("x-ambry-owner-id")
		req.Private, _ = strconv.ParseBool(r.Header.Get("x-ambry-private"))

		ttl, err := strconv.ParseInt(r.Header.Get("x-ambry-ttl"), 10, 64)
		if err != nil {
			return nil, cmn.NewPipelineError(cmn.ErrMissingArgs, "missing or invalid x-ambry-ttl")
		}
		req.TTLSeconds = ttl

		if size := r.Header.Get("x-ambry-blob-size"); size != "" {
			n, err := strconv.ParseInt(size, 10, 64)
			if err != nil {
				return nil, cmn.NewPipelineError(cmn.ErrInvalidArgument, "invalid x-ambry-blob-size")
			}
			req.ContentLength = n
		}

		if ta := r.Header.Get("x-ambry-target-account"); ta != "" {
			req.TargetAccount = &ta
		}
		if tc := r.Header.Get("x-ambry-target-container"); tc != "" {
			req.TargetContainer = &tc
		}

		req.UserMetadata = map[string]string{}
		for key := range r.Header {
			lower := strings.ToLower(key)
			if strings.HasPrefix(lower, "x-ambry-um-") {
				req.UserMetadata[strings.TrimPrefix(lower, "x-ambry-um-")] = r.Header.Get(key)
			}
		}
	}

	return req, nil
}

// parseRange accepts two forms: "bytes=a-b" and "bytes=a-". The suffix
// form "bytes=-b" (the last b bytes) is not supported: an absent start
// returns errInvalidRange, which the caller reports as InvalidArgument.
func parseRange(hdr string) (start, end int64, err error) {
	const prefix = "bytes="
	if !strings.HasPrefix(hdr, prefix) {
		return -1, -1, errInvalidRange
	}
	spec := strings.TrimPrefix(hdr, prefix)
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return -1, -1, errInvalidRange
	}
	if parts[0] == "" {
		return -1, -1, errInvalidRange
	}
	start, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 {
		return -1, -1, errInvalidRange
	}
	if parts[1] == "" {
		return start, -1, nil
	}
	end, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil || end < start {
		return -1, -1, errInvalidRange
	}
	return start, end, nil
}

func writeResponse(w http.ResponseWriter, waiter *responseWaiter) {
	hdr := w.Header()
	for k, vs := range waiter.headers {
		for _, v := range vs {
			hdr.Add(k, v)
		}
	}
	hdr.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(waiter.status)
	if waiter.body != nil {
		defer waiter.body.Close()
		io.Copy(w, waiter.body)
	}
}

func writePipelineError(w http.ResponseWriter, pe *cmn.PipelineError) {
	w.Header().Set("x-ambry-error-code", string(pe.Code))
	w.WriteHeader(pe.HTTPStatus())
}
