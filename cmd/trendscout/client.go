// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

// defaultHTTPClient is the package-level HTTP client used by CLI commands.
// Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// apiClient provides HTTP access to a running trendscout server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

// newAPIClient creates a client targeting the given host:port address.
func newAPIClient(addr string) *apiClient {
	return &apiClient{
		baseURL: "http://" + addr,
		http:    defaultHTTPClient,
	}
}

// getJSON performs a GET request and decodes the JSON response into dest.
// A refused connection returns a server-not-running code so callers can
// print a friendly message instead of a dial error.
func (c *apiClient) getJSON(path string, dest any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		if isDialError(err) {
			return tserr.New(tserr.CodeCLIServerNotRunning, "server is not running (connection refused)")
		}
		return tserr.Wrap(err, tserr.CodeCLIRequestFailure, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return tserr.New(tserr.CodeCLIRequestFailure,
			fmt.Sprintf("server returned status %d: %s", resp.StatusCode, string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return tserr.Wrap(err, tserr.CodeCLIResponseInvalid, "invalid response")
	}
	return nil
}

// isDialError returns true if err is a net dial error (connection refused,
// no such host, and friends).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
