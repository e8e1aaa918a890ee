// File: internal/services/images/preview.go
package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxPreviewBytes = 512 * 1024
	MaxPreviewWidth        = 1024
	MinJPEGQuality         = 30
	MaxJPEGQuality         = 95

	maxDownloadBytes = 32 << 20
)

type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Preview is an inline-sized rendition of a generated image.
type Preview struct {
	Data      []byte
	MediaType string
	Width     int
	Height    int
}

// Previewer downloads generated images and shrinks them for inline display.
type Previewer struct {
	client   *http.Client
	maxBytes int
	logger   Logger
}

func NewPreviewer(client *http.Client, maxBytes int, logger Logger) *Previewer {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPreviewBytes
	}
	return &Previewer{client: client, maxBytes: maxBytes, logger: logger}
}

// Fetch downloads the image at url.
func (p *Previewer) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build image request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download image: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image body: %w", err)
	}
	if len(data) > maxDownloadBytes {
		return nil, "", fmt.Errorf("image larger than %d bytes", maxDownloadBytes)
	}
	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	return data, mediaType, nil
}

// Compress returns data unchanged when it already fits. Otherwise the image is
// scaled down to MaxPreviewWidth and re-encoded: PNG when it has transparency
// and still fits, JPEG at the highest quality that fits otherwise.
func (p *Previewer) Compress(data []byte) (*Preview, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if len(data) <= p.maxBytes {
		return &Preview{Data: data, MediaType: "image/" + format, Width: cfg.Width, Height: cfg.Height}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	img := Resize(src, MaxPreviewWidth)
	bounds := img.Bounds()
	p.logger.Debug("compressing preview",
		"original_bytes", len(data), "width", bounds.Dx(), "height", bounds.Dy())

	if !isOpaque(img) {
		var buf bytes.Buffer
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		if buf.Len() <= p.maxBytes {
			return &Preview{Data: buf.Bytes(), MediaType: "image/png", Width: bounds.Dx(), Height: bounds.Dy()}, nil
		}
		img = flatten(img, color.White)
	}

	out, quality, err := SearchJPEGQuality(img, p.maxBytes)
	if err != nil {
		return nil, err
	}
	if len(out) > p.maxBytes {
		p.logger.Warn("preview still above limit at minimum quality", "bytes", len(out), "limit", p.maxBytes)
	}
	p.logger.Debug("preview compressed", "bytes", len(out), "quality", quality)
	return &Preview{Data: out, MediaType: "image/jpeg", Width: bounds.Dx(), Height: bounds.Dy()}, nil
}

// Resize scales img down to maxWidth keeping the aspect ratio. Narrower
// images are returned as is.
func Resize(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// SearchJPEGQuality binary-searches the highest JPEG quality whose encoding
// fits within target. When nothing fits, the minimum quality is used.
func SearchJPEGQuality(img image.Image, target int) ([]byte, int, error) {
	low, high := MinJPEGQuality, MaxJPEGQuality
	var best []byte
	bestQuality := 0

	for low <= high {
		q := (low + high) / 2
		data, err := encodeJPEG(img, q)
		if err != nil {
			return nil, 0, err
		}
		if len(data) <= target {
			best, bestQuality = data, q
			low = q + 1
		} else {
			high = q - 1
		}
	}
	if best != nil {
		return best, bestQuality, nil
	}
	data, err := encodeJPEG(img, MinJPEGQuality)
	return data, MinJPEGQuality, err
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}

func flatten(img image.Image, bg color.Color) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}
