package snapshotapi

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	errorslib "github.com/goliatone/go-errors"
	"github.com/goliatone/go-snapshot/snapshot"
)

// DefaultMaxBufferBytes bounds the in-memory copy of an export response.
const DefaultMaxBufferBytes int64 = 64 * 1024 * 1024

// DefaultMaxRequestBytes bounds an export request body.
const DefaultMaxRequestBytes int64 = 16 * 1024 * 1024

// DefaultBasePath is used when Config.BasePath is empty.
const DefaultBasePath = "/snapshots"

// Config configures the shared snapshot API controller.
type Config struct {
	Orchestrator   *snapshot.Orchestrator
	Templates      TemplateRenderer
	BasePath       string
	Logger         snapshot.Logger
	RequestDecoder RequestDecoder
	MaxBufferBytes int64
}

// Controller exposes snapshot API handlers for multiple transports.
type Controller struct {
	orchestrator   *snapshot.Orchestrator
	basePath       string
	logger         snapshot.Logger
	requestDecoder RequestDecoder
	maxBufferBytes int64
}

// NewController creates a shared snapshot API controller.
func NewController(cfg Config) *Controller {
	basePath := strings.TrimRight(cfg.BasePath, "/")
	if basePath == "" {
		basePath = DefaultBasePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = snapshot.NopLogger{}
	}
	decoder := cfg.RequestDecoder
	if decoder == nil {
		decoder = JSONRequestDecoder{Templates: cfg.Templates}
	}
	maxBuffer := cfg.MaxBufferBytes
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBufferBytes
	}
	return &Controller{
		orchestrator:   cfg.Orchestrator,
		basePath:       basePath,
		logger:         logger,
		requestDecoder: decoder,
		maxBufferBytes: maxBuffer,
	}
}

// BasePath returns the configured base path.
func (c *Controller) BasePath() string {
	if c == nil {
		return ""
	}
	return c.basePath
}

// Serve routes snapshot endpoints using the shared controller.
func (c *Controller) Serve(req Request, res Response) {
	if res == nil {
		return
	}
	if c == nil {
		WriteError(res, snapshot.NewError(snapshot.KindInternal, "handler is nil", nil))
		return
	}
	if req == nil {
		WriteError(res, snapshot.NewError(snapshot.KindInternal, "request is nil", nil))
		return
	}
	if !strings.HasPrefix(req.Path(), c.basePath) {
		writeNotFound(res)
		return
	}

	pathSuffix := strings.TrimPrefix(req.Path(), c.basePath)
	pathSuffix = strings.Trim(pathSuffix, "/")
	parts := []string{}
	if pathSuffix != "" {
		parts = strings.Split(pathSuffix, "/")
	}

	switch req.Method() {
	case http.MethodPost:
		if len(parts) != 0 {
			writeNotFound(res)
			return
		}
		c.handleExport(req, res)
	case http.MethodGet:
		if len(parts) == 0 {
			writeNotFound(res)
			return
		}
		switch {
		case len(parts) == 1 && parts[0] == "formats":
			c.handleFormats(req, res)
		case len(parts) == 1 && parts[0] == "busy":
			c.handleBusy(req, res)
		case len(parts) == 1 && parts[0] == "jobs":
			c.handleList(req, res)
		case len(parts) == 2 && parts[0] == "jobs":
			c.handleStatus(req, res, parts[1])
		case len(parts) == 3 && parts[0] == "jobs" && parts[2] == "download":
			c.handleDownload(req, res, parts[1])
		default:
			writeNotFound(res)
		}
	default:
		res.SetHeader("Allow", "GET, POST")
		writeJSON(res, http.StatusMethodNotAllowed, ErrorResponse{
			Error: ErrorBody{Message: "method not allowed", Code: "method_not_allowed"},
		})
	}
}

func (c *Controller) handleFormats(req Request, res Response) {
	_ = req
	if c.orchestrator == nil || c.orchestrator.Formats == nil {
		WriteError(res, snapshot.NewError(snapshot.KindNotImpl, "format registry not configured", nil))
		return
	}
	specs := c.orchestrator.Formats.List()
	out := make([]FormatResponse, 0, len(specs))
	for _, spec := range specs {
		out = append(out, formatResponse(spec))
	}
	writeJSON(res, http.StatusOK, out)
}

func (c *Controller) handleBusy(req Request, res Response) {
	if c.orchestrator == nil {
		WriteError(res, snapshot.NewError(snapshot.KindNotImpl, "orchestrator not configured", nil))
		return
	}
	ref := strings.TrimSpace(req.Query("ref"))
	if ref == "" {
		WriteError(res, snapshot.NewError(snapshot.KindValidation, "ref is required", nil))
		return
	}
	writeJSON(res, http.StatusOK, BusyResponse{Ref: ref, Busy: c.orchestrator.Busy(ref)})
}

// handleExport runs the job into a bounded buffer so failures still produce
// a JSON error and the download headers carry the final filename.
func (c *Controller) handleExport(req Request, res Response) {
	if c.orchestrator == nil {
		WriteError(res, snapshot.NewError(snapshot.KindNotImpl, "orchestrator not configured", nil))
		return
	}
	if c.requestDecoder == nil {
		WriteError(res, snapshot.NewError(snapshot.KindInternal, "request decoder not configured", nil))
		return
	}
	exportReq, err := c.requestDecoder.Decode(req)
	if err != nil {
		WriteError(res, err)
		return
	}

	buffer := newLimitedBuffer(c.maxBufferBytes)
	exportReq.Output = buffer
	result, err := c.orchestrator.Export(req.Context(), exportReq)
	if err != nil {
		WriteError(res, err)
		return
	}

	file := Download{
		JobID:       result.JobID,
		Filename:    sanitizeFilename(result.Filename, result.Output),
		ContentType: contentTypeForOutput(result.Output),
		Size:        int64(buffer.Len()),
		BufferLimit: c.maxBufferBytes,
	}
	if err := res.Download(file, bytes.NewReader(buffer.Bytes())); err != nil {
		c.logger.Errorf("snapshot export response failed job=%s: %v", result.JobID, err)
		WriteError(res, err)
	}
}

func (c *Controller) handleList(req Request, res Response) {
	if c.orchestrator == nil {
		WriteError(res, snapshot.NewError(snapshot.KindNotImpl, "orchestrator not configured", nil))
		return
	}
	filter, err := parseFilter(req)
	if err != nil {
		WriteError(res, err)
		return
	}

	records, err := c.orchestrator.History(req.Context(), filter)
	if err != nil {
		WriteError(res, err)
		return
	}
	out := make([]JobResponse, 0, len(records))
	for _, record := range records {
		out = append(out, jobResponse(record, c.downloadURL(record.ID)))
	}
	writeJSON(res, http.StatusOK, out)
}

func (c *Controller) handleStatus(req Request, res Response, jobID string) {
	if c.orchestrator == nil {
		WriteError(res, snapshot.NewError(snapshot.KindNotImpl, "orchestrator not configured", nil))
		return
	}
	record, err := c.orchestrator.Status(req.Context(), jobID)
	if err != nil {
		WriteError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, jobResponse(record, c.downloadURL(record.ID)))
}

func (c *Controller) handleDownload(req Request, res Response, jobID string) {
	if c.orchestrator == nil {
		WriteError(res, snapshot.NewError(snapshot.KindNotImpl, "orchestrator not configured", nil))
		return
	}
	reader, meta, err := c.orchestrator.Download(req.Context(), jobID)
	if err != nil {
		WriteError(res, err)
		return
	}
	defer reader.Close()

	filename := meta.Filename
	if filename == "" {
		filename = jobID
	}
	contentType := meta.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(filename))
	}
	file := Download{
		JobID:       jobID,
		Filename:    sanitizeFilename(filename, outputFromPath(filename)),
		ContentType: contentType,
		Size:        meta.Size,
		ModTime:     meta.CreatedAt,
		BufferLimit: c.maxBufferBytes,
	}
	if err := res.Download(file, reader); err != nil {
		c.logger.Errorf("snapshot download failed job=%s: %v", jobID, err)
		WriteError(res, err)
	}
}

func (c *Controller) downloadURL(jobID string) string {
	return path.Join(c.basePath, "jobs", jobID, "download")
}

func writeNotFound(res Response) {
	WriteError(res, snapshot.NewError(snapshot.KindNotFound, "route not found", nil))
}

// WriteError writes err as a JSON error body. Capture and packaging detail
// is replaced by the user-facing message.
func WriteError(res Response, err error) {
	if err == nil {
		return
	}
	ge := snapshot.AsGoError(err)
	status := statusForError(ge)
	message := ge.Message
	if status == http.StatusInternalServerError {
		message = snapshot.UserMessage(err)
	}
	writeJSON(res, status, ErrorResponse{
		Error: ErrorBody{
			Message: message,
			Code:    ge.TextCode,
		},
	})
}

func writeJSON(res Response, status int, payload any) {
	_ = res.JSON(status, payload)
}

func statusForError(err *errorslib.Error) int {
	if err == nil {
		return http.StatusInternalServerError
	}
	if err.TextCode == "not_implemented" {
		return http.StatusNotImplemented
	}
	switch err.Category {
	case errorslib.CategoryValidation:
		return http.StatusBadRequest
	case errorslib.CategoryNotFound:
		return http.StatusNotFound
	case errorslib.CategoryOperation:
		switch err.TextCode {
		case "busy", "canceled":
			return http.StatusConflict
		}
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func parseFilter(req Request) (snapshot.JobFilter, error) {
	filter := snapshot.JobFilter{
		DocumentRef: req.Query("document_ref"),
		Format:      snapshot.FormatID(req.Query("format")),
		State:       snapshot.JobState(req.Query("state")),
	}
	if since := req.Query("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return snapshot.JobFilter{}, snapshot.NewError(snapshot.KindValidation, "invalid since timestamp", err)
		}
		filter.Since = ts
	}
	if until := req.Query("until"); until != "" {
		ts, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return snapshot.JobFilter{}, snapshot.NewError(snapshot.KindValidation, "invalid until timestamp", err)
		}
		filter.Until = ts
	}
	return filter, nil
}

func sanitizeFilename(filename string, output snapshot.OutputKind) string {
	name := strings.TrimSpace(filename)
	name = strings.ReplaceAll(name, "\"", "")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" {
		if output != "" {
			name = fmt.Sprintf("snapshot.%s", output)
		} else {
			name = "snapshot"
		}
	}
	return name
}

func contentTypeForOutput(output snapshot.OutputKind) string {
	switch output {
	case snapshot.OutputPNG:
		return "image/png"
	case snapshot.OutputPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

func outputFromPath(name string) snapshot.OutputKind {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "png":
		return snapshot.OutputPNG
	case "pdf":
		return snapshot.OutputPDF
	default:
		return ""
	}
}

type limitedBuffer struct {
	buf     bytes.Buffer
	maxSize int64
}

func newLimitedBuffer(maxSize int64) *limitedBuffer {
	if maxSize <= 0 {
		maxSize = DefaultMaxBufferBytes
	}
	return &limitedBuffer{maxSize: maxSize}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.maxSize > 0 && int64(b.buf.Len()+len(p)) > b.maxSize {
		return 0, snapshot.NewError(snapshot.KindInternal, "buffer limit exceeded", nil)
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

func (b *limitedBuffer) Len() int {
	return b.buf.Len()
}
