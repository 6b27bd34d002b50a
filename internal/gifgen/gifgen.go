// Package gifgen assembles the screenshots of a batch run into a tour GIF.
package gifgen

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	_ "image/png"
	"os"
	"sort"
	"time"

	"github.com/nfnt/resize"
)

// Options configures tour generation.
type Options struct {
	FrameDelay time.Duration // how long each screenshot stays on screen
	MaxWidth   uint
}

// Generate decodes the screenshots at paths and writes them as an animated,
// looping GIF to outputPath. It returns the size of the written file.
func Generate(paths []string, outputPath string, opts Options) (int64, error) {
	if len(paths) == 0 {
		return 0, fmt.Errorf("no screenshots to assemble")
	}
	if opts.FrameDelay <= 0 {
		opts.FrameDelay = 2 * time.Second
	}
	if opts.MaxWidth == 0 {
		opts.MaxWidth = 375
	}

	frames := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		img, err := decode(p)
		if err != nil {
			return 0, err
		}
		frames = append(frames, img)
	}

	// Every frame is scaled to the first screenshot's aspect ratio.
	bounds := frames[0].Bounds()
	width := opts.MaxWidth
	if uint(bounds.Dx()) < width {
		width = uint(bounds.Dx())
	}
	height := uint(float64(width) * float64(bounds.Dy()) / float64(bounds.Dx()))
	if height == 0 {
		height = 1
	}

	resized := make([]image.Image, len(frames))
	for i, frame := range frames {
		resized[i] = resize.Resize(width, height, frame, resize.Lanczos3)
	}

	palette := buildPalette(resized)
	delay := int(opts.FrameDelay / (10 * time.Millisecond))

	g := &gif.GIF{
		Image:     make([]*image.Paletted, len(resized)),
		Delay:     make([]int, len(resized)),
		LoopCount: 0,
	}
	for i, frame := range resized {
		paletted := image.NewPaletted(frame.Bounds(), palette)
		draw.FloydSteinberg.Draw(paletted, frame.Bounds(), frame, image.Point{})
		g.Image[i] = paletted
		g.Delay[i] = delay
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := gif.EncodeAll(f, g); err != nil {
		return 0, err
	}

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// buildPalette picks the 256 most frequent colors sampled across frames,
// padding with grays.
func buildPalette(frames []image.Image) color.Palette {
	counts := make(map[color.RGBA]int)
	const step = 4
	for _, img := range frames {
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y += step {
			for x := b.Min.X; x < b.Max.X; x += step {
				r, g, bl, _ := img.At(x, y).RGBA()
				counts[color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8), A: 255}]++
			}
		}
	}

	colors := make([]color.RGBA, 0, len(counts))
	for c := range counts {
		colors = append(colors, c)
	}
	sort.Slice(colors, func(i, j int) bool {
		if counts[colors[i]] != counts[colors[j]] {
			return counts[colors[i]] > counts[colors[j]]
		}
		return rgbaKey(colors[i]) < rgbaKey(colors[j])
	})

	palette := make(color.Palette, 0, 256)
	for _, c := range colors {
		if len(palette) == 256 {
			break
		}
		palette = append(palette, c)
	}
	for len(palette) < 256 {
		gray := uint8(len(palette))
		palette = append(palette, color.RGBA{R: gray, G: gray, B: gray, A: 255})
	}
	return palette
}

func rgbaKey(c color.RGBA) uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}
