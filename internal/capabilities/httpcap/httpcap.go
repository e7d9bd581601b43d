// SPDX-License-Identifier: MPL-2.0

// Package httpcap implements the http.* capabilities: fetch, post and
// download. Transport failures and non-2xx statuses are reported in the
// output with success:false; they never fault.
package httpcap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ptcrun/ptc/internal/capability"
)

// Namespace is the capability namespace of this package.
const Namespace = "http"

const (
	defaultTimeout         = 30 * time.Second
	defaultDownloadTimeout = 5 * time.Minute
	defaultContentType     = "application/json"
)

type (
	// FetchInput is the input of http.fetch.
	FetchInput struct {
		URL     string            `json:"url" validate:"required,url"`
		Headers map[string]string `json:"headers,omitempty"`
		// FollowRedirects defaults to true.
		FollowRedirects *bool `json:"followRedirects,omitempty"`
		// Timeout is in milliseconds.
		Timeout int `json:"timeout,omitempty" validate:"gte=0" jsonschema:"default=30000"`
	}

	// FetchOutput is the output of http.fetch.
	FetchOutput struct {
		Success bool              `json:"success"`
		Status  int               `json:"status"`
		Headers map[string]string `json:"headers"`
		Body    string            `json:"body"`
		Size    int               `json:"size"`
		Error   string            `json:"error,omitempty"`
	}

	// PostInput is the input of http.post. A string Body is sent verbatim;
	// anything else is JSON-encoded.
	PostInput struct {
		URL         string            `json:"url" validate:"required,url"`
		Body        any               `json:"body,omitempty"`
		ContentType string            `json:"contentType,omitempty" jsonschema:"default=application/json"`
		Headers     map[string]string `json:"headers,omitempty"`
		Timeout     int               `json:"timeout,omitempty" validate:"gte=0" jsonschema:"default=30000"`
	}

	// PostOutput is the output of http.post. JSON holds the parsed response
	// body when it is valid JSON.
	PostOutput struct {
		Success bool              `json:"success"`
		Status  int               `json:"status"`
		Headers map[string]string `json:"headers"`
		Body    string            `json:"body"`
		JSON    any               `json:"json,omitempty"`
		Error   string            `json:"error,omitempty"`
	}

	// DownloadInput is the input of http.download.
	DownloadInput struct {
		URL         string            `json:"url" validate:"required,url"`
		Destination string            `json:"destination" validate:"required"`
		Headers     map[string]string `json:"headers,omitempty"`
		Timeout     int               `json:"timeout,omitempty" validate:"gte=0" jsonschema:"default=300000"`
	}

	// DownloadOutput is the output of http.download.
	DownloadOutput struct {
		Success     bool   `json:"success"`
		Path        string `json:"path"`
		Size        int64  `json:"size"`
		ContentType string `json:"contentType,omitempty"`
		Error       string `json:"error,omitempty"`
	}
)

// Register adds the http.* capabilities to catalog.
func Register(catalog *capability.Catalog) {
	catalog.Register(capability.Descriptor{
		Key:     capability.NewKey(Namespace, "fetch"),
		Summary: "Send a GET request and return the response body as text",
		Input:   FetchInput{},
		Impl:    capability.Typed(Fetch),
	})
	catalog.Register(capability.Descriptor{
		Key:     capability.NewKey(Namespace, "post"),
		Summary: "Send a POST request",
		Input:   PostInput{},
		Impl:    capability.Typed(Post),
	})
	catalog.Register(capability.Descriptor{
		Key:     capability.NewKey(Namespace, "download"),
		Summary: "Download a URL to a file",
		Input:   DownloadInput{},
		Impl:    capability.Typed(Download),
	})
}

// Fetch performs a GET request.
func Fetch(ctx context.Context, in FetchInput) (FetchOutput, error) {
	out := FetchOutput{Headers: map[string]string{}}

	follow := in.FollowRedirects == nil || *in.FollowRedirects
	resp, body, err := do(ctx, http.MethodGet, in.URL, nil, in.Headers, timeout(in.Timeout, defaultTimeout), follow)
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}

	out.Success = ok(resp)
	out.Status = resp.StatusCode
	out.Headers = flattenHeaders(resp.Header)
	out.Body = string(body)
	out.Size = len(body)
	return out, nil
}

// Post performs a POST request.
func Post(ctx context.Context, in PostInput) (PostOutput, error) {
	out := PostOutput{Headers: map[string]string{}}

	var payload []byte
	switch b := in.Body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return out, fmt.Errorf("failed to encode request body: %w", err)
		}
		payload = data
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	headers := map[string]string{"Content-Type": contentType}
	for k, v := range in.Headers {
		headers[k] = v
	}

	resp, body, err := do(ctx, http.MethodPost, in.URL, payload, headers, timeout(in.Timeout, defaultTimeout), true)
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}

	out.Success = ok(resp)
	out.Status = resp.StatusCode
	out.Headers = flattenHeaders(resp.Header)
	out.Body = string(body)
	var parsed any
	if json.Unmarshal(body, &parsed) == nil {
		out.JSON = parsed
	}
	return out, nil
}

// Download saves the response body of a GET request to Destination,
// creating parent directories.
func Download(ctx context.Context, in DownloadInput) (DownloadOutput, error) {
	out := DownloadOutput{Path: in.Destination}

	ctx, cancel := context.WithTimeout(ctx, timeout(in.Timeout, defaultDownloadTimeout))
	defer cancel()

	req, err := newRequest(ctx, http.MethodGet, in.URL, nil, in.Headers)
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}
	defer resp.Body.Close()

	if !ok(resp) {
		out.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		return out, nil
	}

	if err := os.MkdirAll(filepath.Dir(in.Destination), 0o755); err != nil {
		out.Error = err.Error()
		return out, nil
	}
	f, err := os.Create(in.Destination)
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}

	out.Success = true
	out.Size = n
	out.ContentType = resp.Header.Get("Content-Type")
	return out, nil
}

// do sends a request and reads the whole response body.
func do(ctx context.Context, method, url string, body []byte, headers map[string]string, limit time.Duration, follow bool) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	req, err := newRequest(ctx, method, url, body, headers)
	if err != nil {
		return nil, nil, err
	}

	client := &http.Client{}
	if !follow {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("request timed out after %s", limit)
		}
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp, data, nil
}

func newRequest(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func ok(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// flattenHeaders lower-cases header names and joins repeated values.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}

func timeout(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
