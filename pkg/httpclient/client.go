package httpclient

import (
	"crypto/tls"
	"net/http"
	"os"
	"strings"

	// Packages
	client "github.com/mutablelogic/go-client"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Client is an upload HTTP client that wraps the base HTTP client
// and provides typed methods for interacting with the upload API.
type Client struct {
	*client.Client
}

///////////////////////////////////////////////////////////////////////////////
// CONSTANTS

// http1Env disables HTTP/2 when set, for proxies which mishandle large
// streamed request bodies
const http1Env = "UPLOAD_HTTP1"

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a new upload HTTP client with the given base URL and options.
// The url parameter should point to the upload API endpoint, e.g.
// "http://localhost:8080/api/upload".
func New(url string, opts ...client.ClientOpt) (*Client, error) {
	c := new(Client)
	cl, err := client.New(append(opts, client.OptEndpoint(url))...)
	if err != nil {
		return nil, err
	}
	if isTruthyEnv(http1Env) {
		cl.Client.Transport = http1Transport(cl.Client.Transport)
	}
	c.Client = cl
	return c, nil
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// http1Transport returns a copy of the transport with HTTP/2 disabled
func http1Transport(rt http.RoundTripper) http.RoundTripper {
	tr, ok := rt.(*http.Transport)
	if !ok || tr == nil {
		tr = http.DefaultTransport.(*http.Transport)
	}
	tr = tr.Clone()
	tr.ForceAttemptHTTP2 = false
	tr.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	return tr
}

func isTruthyEnv(key string) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	return v != "" && v != "0" && v != "false" && v != "no" && v != "off"
}
