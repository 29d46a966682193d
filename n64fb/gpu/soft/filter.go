package soft

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/valerio/go-n64fb/n64fb/gpu"
)

func (c *Context) ApplyFilter(p gpu.FilterPass) {
	src := c.textures[p.Src]
	dst := c.colorOf(p.Dst)
	if src == nil || src.color == nil || dst == nil {
		return
	}
	c.stats.Filters++

	in := src.color
	out := image.NewNRGBA(in.Bounds())
	switch p.Kind {
	case gpu.FilterGamma:
		gamma(out, in, p.Amount)
	case gpu.FilterFXAA:
		fxaa(out, in)
	case gpu.FilterFlipVertical:
		remap(out, in, p.Rect, func(x, y, w, h int) (int, int) { return x, h - 1 - y })
	case gpu.FilterFlipHorizontal:
		remap(out, in, p.Rect, func(x, y, w, h int) (int, int) { return w - 1 - x, y })
	case gpu.FilterRotate180:
		remap(out, in, p.Rect, func(x, y, w, h int) (int, int) { return w - 1 - x, h - 1 - y })
	default:
		copy(out.Pix, in.Pix)
	}
	copyImage(dst.color, dst.color.Bounds(), out, out.Bounds(), gpu.FilterNearest, draw.Src)
}

func gamma(out, in *image.NRGBA, level float32) {
	if level <= 0 {
		level = 1
	}
	var table [256]uint8
	inv := 1 / float64(level)
	for i := range table {
		table[i] = uint8(math.Round(math.Pow(float64(i)/255, inv) * 255))
	}
	for i := 0; i+3 < len(in.Pix); i += 4 {
		out.Pix[i] = table[in.Pix[i]]
		out.Pix[i+1] = table[in.Pix[i+1]]
		out.Pix[i+2] = table[in.Pix[i+2]]
		out.Pix[i+3] = in.Pix[i+3]
	}
}

// remap moves the pixels inside rect; the rest of the image is copied as is.
func remap(out, in *image.NRGBA, rect image.Rectangle, src func(x, y, w, h int) (int, int)) {
	copy(out.Pix, in.Pix)
	b := in.Bounds()
	if r := rect.Add(b.Min).Intersect(b); !r.Empty() {
		b = r
	}
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := src(x, y, w, h)
			si := in.PixOffset(b.Min.X+sx, b.Min.Y+sy)
			di := out.PixOffset(b.Min.X+x, b.Min.Y+y)
			copy(out.Pix[di:di+4], in.Pix[si:si+4])
		}
	}
}

func luma(img *image.NRGBA, x, y int) float32 {
	b := img.Bounds()
	x = min(max(x, b.Min.X), b.Max.X-1)
	y = min(max(y, b.Min.Y), b.Max.Y-1)
	i := img.PixOffset(x, y)
	return 0.299*float32(img.Pix[i]) + 0.587*float32(img.Pix[i+1]) + 0.114*float32(img.Pix[i+2])
}

const (
	fxaaEdgeThreshold = 1.0 / 8
	fxaaEdgeMin       = 1.0 / 16 * 255
)

// fxaa blends pixels that sit on a luma edge with their 4-neighbourhood.
// Flat areas are copied unchanged.
func fxaa(out, in *image.NRGBA) {
	copy(out.Pix, in.Pix)
	b := in.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			m := luma(in, x, y)
			n, s := luma(in, x, y-1), luma(in, x, y+1)
			w, e := luma(in, x-1, y), luma(in, x+1, y)
			lo := min(m, n, s, w, e)
			hi := max(m, n, s, w, e)
			if hi-lo < max(fxaaEdgeMin, hi*fxaaEdgeThreshold) {
				continue
			}
			di := out.PixOffset(x, y)
			for ch := 0; ch < 3; ch++ {
				sum := 4 * uint32(in.Pix[in.PixOffset(x, y)+ch])
				sum += uint32(in.Pix[in.PixOffset(x, max(y-1, b.Min.Y))+ch])
				sum += uint32(in.Pix[in.PixOffset(x, min(y+1, b.Max.Y-1))+ch])
				sum += uint32(in.Pix[in.PixOffset(max(x-1, b.Min.X), y)+ch])
				sum += uint32(in.Pix[in.PixOffset(min(x+1, b.Max.X-1), y)+ch])
				out.Pix[di+ch] = uint8(sum / 8)
			}
		}
	}
}
