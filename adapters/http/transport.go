package snapshothttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/goliatone/go-snapshot/adapters/snapshotapi"
)

var (
	_ snapshotapi.Request  = httpRequest{}
	_ snapshotapi.Response = httpResponse{}
)

type httpRequest struct {
	w http.ResponseWriter
	r *http.Request
}

// NewRequest adapts a net/http request. The body is capped at
// snapshotapi.DefaultMaxRequestBytes.
func NewRequest(w http.ResponseWriter, r *http.Request) snapshotapi.Request {
	return httpRequest{w: w, r: r}
}

func (req httpRequest) Context() context.Context {
	if req.r == nil {
		return context.Background()
	}
	return req.r.Context()
}

func (req httpRequest) Method() string {
	if req.r == nil {
		return ""
	}
	return req.r.Method
}

func (req httpRequest) Path() string {
	if req.r == nil || req.r.URL == nil {
		return ""
	}
	return req.r.URL.Path
}

func (req httpRequest) Query(name string) string {
	if req.r == nil || req.r.URL == nil {
		return ""
	}
	return req.r.URL.Query().Get(name)
}

func (req httpRequest) Body() io.ReadCloser {
	if req.r == nil || req.r.Body == nil || req.r.Body == http.NoBody {
		return nil
	}
	return http.MaxBytesReader(req.w, req.r.Body, snapshotapi.DefaultMaxRequestBytes)
}

type httpResponse struct {
	w http.ResponseWriter
	r *http.Request
}

// NewResponse adapts a net/http response writer. Downloads go through
// http.ServeContent when the body can seek, so range and conditional
// requests work on stored artifacts.
func NewResponse(w http.ResponseWriter, r *http.Request) snapshotapi.Response {
	return httpResponse{w: w, r: r}
}

func (res httpResponse) SetHeader(name, value string) {
	res.w.Header().Set(name, value)
}

func (res httpResponse) JSON(status int, payload any) error {
	res.w.Header().Set("Content-Type", "application/json")
	res.w.WriteHeader(status)
	return json.NewEncoder(res.w).Encode(payload)
}

func (res httpResponse) Download(file snapshotapi.Download, body io.Reader) error {
	h := res.w.Header()
	h.Set("Content-Type", file.MediaType())
	h.Set("Content-Disposition", file.Disposition())
	if file.JobID != "" {
		h.Set(snapshotapi.JobIDHeader, file.JobID)
	}

	if rs, ok := body.(io.ReadSeeker); ok && res.r != nil {
		http.ServeContent(res.w, res.r, file.Filename, file.ModTime, rs)
		return nil
	}

	if file.Size > 0 {
		h.Set("Content-Length", strconv.FormatInt(file.Size, 10))
	}
	res.w.WriteHeader(http.StatusOK)
	// Headers are committed, so a copy error only truncates the body.
	_, _ = io.Copy(res.w, body)
	return nil
}
