package snapshotpdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/goliatone/go-snapshot/snapshot"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PDFCPUEngine imports the image onto a new page with pdfcpu.
type PDFCPUEngine struct{}

func (PDFCPUEngine) RenderPage(ctx context.Context, png []byte, page snapshot.PageSize) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(png) == 0 {
		return nil, snapshot.NewError(snapshot.KindPackaging, "page image is empty", nil)
	}
	if page.WidthPt <= 0 || page.HeightPt <= 0 {
		return nil, snapshot.NewError(snapshot.KindValidation, fmt.Sprintf("invalid page size %vx%vpt", page.WidthPt, page.HeightPt), nil)
	}

	conf := model.NewDefaultConfiguration()
	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, []io.Reader{bytes.NewReader(png)}, pageImport(page), conf); err != nil {
		return nil, snapshot.NewError(snapshot.KindPackaging, "import image into pdf", err)
	}
	return out.Bytes(), nil
}

// pageImport fixes the MediaBox to the physical page. The image is scaled to
// fit and centered, so the raster's pixel count never sizes the page.
func pageImport(page snapshot.PageSize) *pdfcpu.Import {
	return &pdfcpu.Import{
		PageDim:  &types.Dim{Width: page.WidthPt, Height: page.HeightPt},
		PageSize: page.Name,
		UserDim:  true,
		Pos:      types.Center,
		Scale:    1.0,
		InpUnit:  types.POINTS,
	}
}
