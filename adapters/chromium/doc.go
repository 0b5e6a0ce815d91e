// Package snapshotchromium captures documents with a shared headless Chromium
// instance driven by chromedp.
//
// Browser implements snapshot.SurfaceFactory: each surface is a fresh tab
// holding the isolated capture page, with the viewport sized to the authored
// box and the device scale factor set per capture. PrintEngine places a
// finished raster on a physical PDF page using print-to-PDF.
package snapshotchromium
