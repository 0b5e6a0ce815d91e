// Package snapshotapi holds the transport-agnostic HTTP controller shared by
// the net/http and go-router adapters.
//
// Routes, relative to the base path (default /snapshots):
//
//	GET  /formats                format catalog
//	POST /                       run an export and download the file
//	GET  /busy?ref=              in-flight state for a document
//	GET  /jobs                   job history (document_ref, format, state, since, until)
//	GET  /jobs/:id               job status
//	GET  /jobs/:id/download      stored file of a finished job
package snapshotapi
