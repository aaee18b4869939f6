package gitsync

import (
	"log"
	"net/http"
	"net/http/httputil"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport/client"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// LoggingTransport is an http.RoundTripper that logs git requests and
// responses. Authorization headers are redacted before dumping: backend
// tokens must never end up in persistent logs.
type LoggingTransport struct {
	Transport http.RoundTripper
	Logger    *log.Logger
}

// NewLoggingTransport creates a new LoggingTransport. If transport is nil,
// http.DefaultTransport is used. If logger is nil, a default logger to
// stderr is used.
func NewLoggingTransport(transport http.RoundTripper, logger *log.Logger) *LoggingTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = log.New(os.Stderr, "git-http: ", log.LstdFlags)
	}
	return &LoggingTransport{
		Transport: transport,
		Logger:    logger,
	}
}

// EnableHTTPDebug routes all git HTTP(S) traffic through a LoggingTransport.
// Intended for debugging synchronization problems against misbehaving
// servers.
func EnableHTTPDebug() {
	tr := NewLoggingTransport(nil, nil)
	for _, proto := range []string{"http", "https"} {
		client.InstallProtocol(proto, githttp.NewClient(&http.Client{Transport: tr}))
	}
}

// RoundTrip executes a single HTTP transaction, logging the request and
// response with credentials stripped.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	redacted := req.Clone(req.Context())
	if redacted.Header.Get("Authorization") != "" {
		redacted.Header.Set("Authorization", "*******")
	}

	reqDump, err := httputil.DumpRequestOut(redacted, false)
	if err != nil {
		t.Logger.Printf("Error dumping request: %v", err)
	} else {
		t.Logger.Printf("Request:\n%s", string(reqDump))
	}

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		t.Logger.Printf("Error making request: %v", err)
		return resp, err // Return the response and error, even if the response is nil.
	}

	respDump, err := httputil.DumpResponse(resp, false)
	if err != nil {
		t.Logger.Printf("Error dumping response: %v", err)
	} else {
		t.Logger.Printf("Response:\n%s", string(respDump))
	}

	return resp, nil
}
