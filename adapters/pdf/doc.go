// Package snapshotpdf packages rasters as single-page print PDFs.
//
// The page is sized in points from the format's physical page, never from
// the raster's pixel count; the raster is placed edge to edge. Page assembly
// is delegated to a pluggable Engine (pdfcpu by default, Chromium
// print-to-PDF through snapshotchromium.PrintEngine).
package snapshotpdf
