// Package quicklook renders regridded results as annotated PNG heatmaps.
package quicklook

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/rtm0/tecgrid/internal/grid"
	"github.com/rtm0/tecgrid/internal/regrid"
)

const (
	dpi      float64 = 72
	fontSize float64 = 12
	spacing  float64 = 1.2
	// captionHeight leaves room for three caption lines.
	captionHeight = 48

	hueStart = 236.0
	hueEnd   = 0.0
)

var noDataColor = color.Black

var parsedFont *truetype.Font

func init() {
	f, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		panic(fmt.Sprintf("quicklook: parsing font: %v", err))
	}
	parsedFont = f
}

// Options controls the rendering.
type Options struct {
	// Scale is the pixel size of one cell.
	Scale int
	// Min and Max fix the color range; both zero selects the data range.
	Min, Max float64
}

// Render draws one frame of res. For (time, lat, lon) results the frame is
// the lat x lon slice at time index, north up. Results with a single spatial
// axis are drawn whole with time running down. Missing cells are black.
func Render(res *regrid.Result, index int, opts Options) (*image.RGBA, error) {
	if opts.Scale <= 0 {
		opts.Scale = 4
	}
	var rows, cols int
	var cells []float64
	switch res.Values.Rank() {
	case 3:
		if index < 0 || index >= res.Grid.Len() {
			return nil, fmt.Errorf("time index %d out of range [0, %d)", index, res.Grid.Len())
		}
		rows, cols = res.Values.Shape[1], res.Values.Shape[2]
		cells = res.Values.Row(index)
	case 2:
		rows, cols = res.Values.Shape[0], res.Values.Shape[1]
		cells = res.Values.Data
	default:
		return nil, fmt.Errorf("cannot render rank %d values", res.Values.Rank())
	}
	if rows == 0 || cols == 0 {
		return nil, errors.New("nothing to render")
	}

	lo, hi := opts.Min, opts.Max
	if lo == 0 && hi == 0 {
		lo, hi = bounds(cells)
	}

	img := image.NewRGBA(image.Rect(0, 0, cols*opts.Scale, rows*opts.Scale+captionHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	for r := 0; r < rows; r++ {
		// Rank 3 rows are latitudes in ascending order; flip so north is up.
		y := r
		if res.Values.Rank() == 3 {
			y = rows - 1 - r
		}
		for c := 0; c < cols; c++ {
			rect := image.Rect(c*opts.Scale, y*opts.Scale, (c+1)*opts.Scale, (y+1)*opts.Scale)
			draw.Draw(img, rect, image.NewUniform(pixelColor(cells[r*cols+c], lo, hi)), image.Point{}, draw.Src)
		}
	}

	if err := annotate(img, rows*opts.Scale, caption(res, index, cells, lo, hi)); err != nil {
		return nil, fmt.Errorf("annotating: %w", err)
	}
	return img, nil
}

func caption(res *regrid.Result, index int, cells []float64, lo, hi float64) []string {
	var when string
	if res.Values.Rank() == 3 {
		when = time.Unix(res.Grid.Unix[index], 0).UTC().Format(time.RFC3339)
	} else if res.Grid.Len() > 0 {
		when = res.Grid.Start().Format(time.RFC3339) + " to " + res.Grid.End().Format(time.RFC3339)
	}
	missing := 0
	for _, v := range cells {
		if grid.IsMissing(v) {
			missing++
		}
	}
	return []string{
		fmt.Sprintf("%s %s %s", res.Dataset, res.Name, when),
		fmt.Sprintf("range %.2f to %.2f", lo, hi),
		fmt.Sprintf("missing %s of %s cells", humanize.Comma(int64(missing)), humanize.Comma(int64(len(cells)))),
	}
}

func annotate(img *image.RGBA, top int, lines []string) error {
	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(fontSize)
	ctx.SetSrc(image.White)
	ctx.SetHinting(font.HintingFull)
	ctx.SetClip(img.Bounds())
	ctx.SetDst(img)

	pt := freetype.Pt(3, top+int(fontSize))
	for _, s := range lines {
		if _, err := ctx.DrawString(s, pt); err != nil {
			return err
		}
		pt.Y += ctx.PointToFixed(fontSize * spacing)
	}
	return nil
}

func bounds(cells []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range cells {
		if grid.IsMissing(v) {
			continue
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return 0, 1
	}
	return lo, hi
}

func pixelColor(v, lo, hi float64) color.Color {
	if grid.IsMissing(v) {
		return noDataColor
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	hue := hueStart - (v-lo)*(hueStart-hueEnd)/span
	hue = math.Min(math.Max(hue, hueEnd), hueStart)
	return colorful.Hsv(hue, 1, 0.90)
}

// WritePNG encodes img to path.
func WritePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cErr)
		}
	}()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}
