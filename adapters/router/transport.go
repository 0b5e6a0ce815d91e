package snapshotrouter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goliatone/go-router"
	snapshothttp "github.com/goliatone/go-snapshot/adapters/http"
	"github.com/goliatone/go-snapshot/adapters/snapshotapi"
	"github.com/goliatone/go-snapshot/snapshot"
)

var (
	_ snapshotapi.Request  = routerRequest{}
	_ snapshotapi.Response = routerResponse{}
)

type routerRequest struct {
	ctx router.Context
}

func (req routerRequest) Context() context.Context { return req.ctx.Context() }

func (req routerRequest) Method() string { return req.ctx.Method() }

func (req routerRequest) Path() string { return req.ctx.Path() }

func (req routerRequest) Query(name string) string { return req.ctx.Query(name) }

func (req routerRequest) Body() io.ReadCloser {
	body := req.ctx.Body()
	if len(body) == 0 {
		return nil
	}
	return io.NopCloser(bytes.NewReader(body))
}

// routerResponse hands downloads to the net/http transport when the router
// exposes the raw writer. Other engines get a bounded in-memory copy.
type routerResponse struct {
	ctx router.Context
}

func (res routerResponse) SetHeader(name, value string) {
	res.ctx.SetHeader(name, value)
}

func (res routerResponse) JSON(status int, payload any) error {
	return res.ctx.JSON(status, payload)
}

func (res routerResponse) Download(file snapshotapi.Download, body io.Reader) error {
	if httpCtx, ok := router.AsHTTPContext(res.ctx); ok && httpCtx.Response() != nil {
		return snapshothttp.NewResponse(httpCtx.Response(), httpCtx.Request()).Download(file, body)
	}

	limit := file.BufferLimit
	if limit <= 0 {
		limit = snapshotapi.DefaultMaxBufferBytes
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return snapshot.NewError(snapshot.KindInternal, "read download", err)
	}
	if int64(len(data)) > limit {
		return snapshot.NewError(snapshot.KindInternal, fmt.Sprintf("download exceeds %d byte buffer", limit), nil)
	}

	res.ctx.SetHeader("Content-Type", file.MediaType())
	res.ctx.SetHeader("Content-Disposition", file.Disposition())
	if file.JobID != "" {
		res.ctx.SetHeader(snapshotapi.JobIDHeader, file.JobID)
	}
	return res.ctx.Status(http.StatusOK).Send(data)
}
