package pipeline

// IdConverter is the single asynchronous operation from §4.3: translate
// external blob id strings to/from the router's canonical id. On POST,
// input is the BlobId the router minted and the converter may register a
// short alias; on GET/HEAD/DELETE, input is the client-supplied id and the
// converter resolves any alias back to the canonical form.
type IdConverter interface {
	Convert(ctx *Context, input string) (string, error)
}

// IdentityConverter is the reference IdConverter: no aliasing, input
// passes straight through. Real deployments that want short-alias support
// supply their own implementation of the same interface.
type IdentityConverter struct{}

func (IdentityConverter) Convert(ctx *Context, input string) (string, error) {
	return input, nil
}

var _ IdConverter = IdentityConverter{}
