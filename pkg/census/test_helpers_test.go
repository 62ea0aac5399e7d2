package census

import (
	"net/http"
	"strings"
)

// newRewriteClient returns an HTTP client that sends requests for
// targetPrefix to the test server instead.
func newRewriteClient(testServerURL, targetPrefix string) *http.Client {
	return &http.Client{
		Transport: &rewriteTransport{
			base:         http.DefaultTransport,
			testServer:   testServerURL,
			targetPrefix: targetPrefix,
		},
	}
}

type rewriteTransport struct {
	base         http.RoundTripper
	testServer   string
	targetPrefix string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	orig := req.URL.String()
	if !strings.HasPrefix(orig, t.targetPrefix) {
		return t.base.RoundTrip(req)
	}
	parsed, err := req.URL.Parse(t.testServer + orig[len(t.targetPrefix):])
	if err != nil {
		return nil, err
	}
	out := req.Clone(req.Context())
	out.URL = parsed
	out.Host = parsed.Host
	return t.base.RoundTrip(out)
}
