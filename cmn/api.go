package cmn

import "net/url"

// ReqArgs is a wire-request-building shape: a method, a path, query
// parameters, and an opaque body. No package of this module builds one;
// the router hands requests to the transport in its own frame types.
type ReqArgs struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// URLPath joins path segments with "/", skipping empty segments.
func URLPath(segments ...string) string {
	out := ""
	for _, s := range segments {
		if s == "" {
			continue
		}
		if out == "" {
			out = s
		} else {
			out = out + "/" + s
		}
	}
	return out
}

// SubResource names the trailing path segment that selects an alternate
// response view, per the GLOSSARY.
type SubResource string

const (
	SubResourceNone         SubResource = ""
	SubResourceBlobInfo     SubResource = "BlobInfo"
	SubResourceUserMetadata SubResource = "UserMetadata"
	SubResourceReplicas     SubResource = "Replicas"
)

// ParseSubResource recognizes exactly the three named sub-resources;
// anything else is treated as "no sub-resource" by the caller, which then
// fails the request appropriately if the path shape doesn't match a blob id.
func ParseSubResource(s string) (SubResource, bool) {
	switch SubResource(s) {
	case SubResourceBlobInfo, SubResourceUserMetadata, SubResourceReplicas:
		return SubResource(s), true
	default:
		return SubResourceNone, false
	}
}
