package snapshotchromium

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/goliatone/go-snapshot/snapshot"
)

const pointsPerInch = 72.0

// PrintEngine places a raster on a single PDF page through Chromium's
// print-to-PDF.
type PrintEngine struct {
	Browser *Browser
}

// RenderPage returns a one-page PDF sized to page with the PNG filling it.
func (e PrintEngine) RenderPage(ctx context.Context, pngData []byte, size snapshot.PageSize) ([]byte, error) {
	if e.Browser == nil {
		return nil, snapshot.NewError(snapshot.KindInternal, "chromium browser is nil", nil)
	}
	if len(pngData) == 0 {
		return nil, snapshot.NewError(snapshot.KindPackaging, "page image is empty", nil)
	}
	params, err := buildPrintToPDFParams(size)
	if err != nil {
		return nil, err
	}

	tabCtx, cancel, err := e.Browser.newTab(ctx, pageHTML(pngData, size), 0, 0)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var pdf []byte
	err = e.Browser.run(ctx, tabCtx, e.Browser.Timeout,
		chromedp.WaitReady("img", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = params.Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, snapshot.NewError(snapshot.KindPackaging, "chromium pdf render failed", err)
	}
	return pdf, nil
}

func buildPrintToPDFParams(size snapshot.PageSize) (*page.PrintToPDFParams, error) {
	if size.WidthPt <= 0 || size.HeightPt <= 0 {
		return nil, snapshot.NewError(snapshot.KindValidation, fmt.Sprintf("invalid page size %vx%vpt", size.WidthPt, size.HeightPt), nil)
	}
	return page.PrintToPDF().
		WithPaperWidth(size.WidthPt / pointsPerInch).
		WithPaperHeight(size.HeightPt / pointsPerInch).
		WithMarginTop(0).
		WithMarginBottom(0).
		WithMarginLeft(0).
		WithMarginRight(0).
		WithPrintBackground(true).
		WithPreferCSSPageSize(true).
		WithScale(1), nil
}

func pageHTML(pngData []byte, size snapshot.PageSize) []byte {
	return []byte(fmt.Sprintf(`<!DOCTYPE html><html><head><meta charset="utf-8"><style>`+
		`@page{size:%gpt %gpt;margin:0}html,body{margin:0;padding:0}`+
		`img{display:block;width:%gpt;height:%gpt}</style></head>`+
		`<body><img src="data:image/png;base64,%s"></body></html>`,
		size.WidthPt, size.HeightPt, size.WidthPt, size.HeightPt, base64.StdEncoding.EncodeToString(pngData)))
}
