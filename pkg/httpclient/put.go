package httpclient

import (
	"bytes"
	"net/http"

	// Packages
	client "github.com/mutablelogic/go-client"
	types "github.com/mutablelogic/go-server/pkg/types"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// partPayload implements client.Payload for PUT requests carrying the raw
// bytes of one part.
type partPayload struct {
	*bytes.Reader
}

var _ client.Payload = (*partPayload)(nil)

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func newPartPayload(data []byte) *partPayload {
	return &partPayload{bytes.NewReader(data)}
}

///////////////////////////////////////////////////////////////////////////////
// INTERFACE IMPLEMENTATION

func (p *partPayload) Method() string {
	return http.MethodPut
}

func (p *partPayload) Accept() string {
	return types.ContentTypeJSON
}

func (p *partPayload) Type() string {
	return types.ContentTypeBinary
}
