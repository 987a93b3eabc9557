package stages

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/ericpauley/go-quantize/quantize"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/svg"

	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
)

// Compress optimizes images by format. The original bytes are kept whenever
// the optimized encoding is not smaller, so output never grows.
type Compress struct {
	PNGColors     int
	PNGDither     bool
	PNGMinQuality int // reject quantizations scoring below this (0-100)
	PNGMaxQuality int // scales the palette size
	JPEGQuality   int
	SVGPrecision  int

	min *minify.M
}

func NewCompress(c Compress) *Compress {
	c.min = minify.New()
	c.min.AddFunc("text/css", css.Minify)
	c.min.Add("image/svg+xml", &svg.Minifier{Precision: c.SVGPrecision})
	return &c
}

func (*Compress) Name() string { return "compress" }

func (c *Compress) Process(_ context.Context, f *pipeline.File) error {
	var (
		out []byte
		err error
	)
	switch f.Ext() {
	case ".png":
		out, err = c.png(f.Data)
	case ".jpg", ".jpeg":
		out, err = c.jpeg(f.Data)
	case ".gif":
		out, err = c.gif(f.Data)
	case ".svg":
		out, err = c.min.Bytes("image/svg+xml", f.Data)
		if err != nil {
			return sourceErr(f, 0, 0, "invalid svg: %v", err)
		}
	default:
		return nil
	}
	if err != nil {
		return processingErr(f, err, "compress image")
	}
	if out != nil && len(out) < len(f.Data) {
		f.Data = out
	}
	return nil
}

func (c *Compress) png(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if _, already := img.(*image.Paletted); already {
		return reencodePNG(img)
	}

	colors := c.PNGColors
	if c.PNGMaxQuality > 0 && c.PNGMaxQuality < 100 {
		colors = max(2, colors*c.PNGMaxQuality/100)
	}
	q := quantize.MedianCutQuantizer{AddTransparent: hasAlpha(img)}
	palette := q.Quantize(make(color.Palette, 0, colors), img)
	bounds := img.Bounds()
	paletted := image.NewPaletted(bounds, palette)
	if c.PNGDither {
		draw.FloydSteinberg.Draw(paletted, bounds, img, bounds.Min)
	} else {
		draw.Draw(paletted, bounds, img, bounds.Min, draw.Src)
	}
	if quality(img, paletted) < c.PNGMinQuality {
		return reencodePNG(img)
	}
	return reencodePNG(paletted)
}

func reencodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return true
}

// quality scores how closely p reproduces img on a 0-100 scale derived
// from the RMS error per channel.
func quality(img image.Image, p *image.Paletted) int {
	b := img.Bounds()
	var sum float64
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r1, g1, b1, a1 := img.At(x, y).RGBA()
			r2, g2, b2, a2 := p.At(x, y).RGBA()
			for _, d := range [4]float64{
				float64(r1>>8) - float64(r2>>8),
				float64(g1>>8) - float64(g2>>8),
				float64(b1>>8) - float64(b2>>8),
				float64(a1>>8) - float64(a2>>8),
			} {
				sum += d * d
			}
			n += 4
		}
	}
	if n == 0 {
		return 100
	}
	rmse := math.Sqrt(sum / float64(n))
	return max(0, int(math.Round(100-rmse*100/64)))
}

func (c *Compress) jpeg(data []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Compress) gif(data []byte) ([]byte, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
