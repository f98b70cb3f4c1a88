// Package render draws certificate documents.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"strconv"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"github.com/certiva/certiva-engine/internal/domain/certificate"
)

const (
	DefaultWidth  = 1200
	DefaultHeight = 850
)

// Options configures the PNG renderer.
type Options struct {
	Width  int
	Height int

	// Issuer is printed under the title.
	Issuer string

	Background color.Color
	Foreground color.Color
	Accent     color.Color
}

// DefaultOptions returns a landscape certificate layout.
func DefaultOptions() Options {
	return Options{
		Width:      DefaultWidth,
		Height:     DefaultHeight,
		Issuer:     "Certiva",
		Background: color.NRGBA{R: 0xFB, G: 0xF8, B: 0xF1, A: 0xFF},
		Foreground: color.NRGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xFF},
		Accent:     color.NRGBA{R: 0x8A, G: 0x6D, B: 0x1F, A: 0xFF},
	}
}

// PNGRenderer implements certificate.Renderer with gg and the built-in bitmap font.
type PNGRenderer struct {
	opts Options
}

var _ certificate.Renderer = (*PNGRenderer)(nil)

// NewPNGRenderer creates a renderer. Zero fields in opts take defaults.
func NewPNGRenderer(opts Options) *PNGRenderer {
	def := DefaultOptions()
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	if opts.Issuer == "" {
		opts.Issuer = def.Issuer
	}
	if opts.Background == nil {
		opts.Background = def.Background
	}
	if opts.Foreground == nil {
		opts.Foreground = def.Foreground
	}
	if opts.Accent == nil {
		opts.Accent = def.Accent
	}
	return &PNGRenderer{opts: opts}
}

// ContentType implements certificate.Renderer.
func (r *PNGRenderer) ContentType() string { return "image/png" }

// Extension implements certificate.Renderer.
func (r *PNGRenderer) Extension() string { return ".png" }

// Render implements certificate.Renderer.
func (r *PNGRenderer) Render(ctx context.Context, rec certificate.Record) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w, h := float64(r.opts.Width), float64(r.opts.Height)
	dc := gg.NewContext(r.opts.Width, r.opts.Height)

	dc.SetColor(r.opts.Background)
	dc.Clear()

	// Double frame.
	dc.SetColor(r.opts.Accent)
	dc.SetLineWidth(8)
	dc.DrawRectangle(24, 24, w-48, h-48)
	dc.Stroke()
	dc.SetLineWidth(2)
	dc.DrawRectangle(44, 44, w-88, h-88)
	dc.Stroke()

	dc.SetFontFace(basicfont.Face7x13)

	r.line(dc, "CERTIFICATE OF COMPLETION", h*0.22, 4, r.opts.Accent)
	r.line(dc, "issued by "+r.opts.Issuer, h*0.30, 1.5, r.opts.Foreground)
	r.line(dc, "This certifies that", h*0.40, 2, r.opts.Foreground)
	r.line(dc, rec.LearnerID, h*0.48, 3, r.opts.Foreground)
	r.line(dc, "has completed the course", h*0.56, 2, r.opts.Foreground)
	r.line(dc, rec.CourseID, h*0.64, 3, r.opts.Foreground)
	r.line(dc, "with a score of "+strconv.Itoa(rec.Score)+" / 100", h*0.72, 2, r.opts.Foreground)
	r.line(dc, "Issued "+rec.IssuedAt.UTC().Format("2 January 2006"), h*0.80, 1.5, r.opts.Foreground)
	r.line(dc, "Verification ID: "+rec.VerificationID, h*0.88, 1.5, r.opts.Accent)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("render: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// line draws s horizontally centred at height y, scaled up from the bitmap font.
func (r *PNGRenderer) line(dc *gg.Context, s string, y, scale float64, c color.Color) {
	cx := float64(r.opts.Width) / 2

	dc.Push()
	dc.SetColor(c)
	dc.ScaleAbout(scale, scale, cx, y)
	dc.DrawStringAnchored(s, cx, y, 0.5, 0.5)
	dc.Pop()
}
