// Package barcode reads product barcodes from uploaded photos so the nutrient
// form can be pre-filled. The decoded text is advisory only.
package barcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // registered decoders
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

const (
	// DefaultMaxBytes bounds the size of an uploaded image.
	DefaultMaxBytes = 8 << 20
	// DefaultMaxPixels bounds the decoded size of an image (40 MP).
	DefaultMaxPixels = 40_000_000
)

var (
	// ErrNoBarcode means the image decoded but no reader found a symbol.
	ErrNoBarcode = errors.New("no barcode found")
	// ErrImage wraps undecodable or oversized uploads.
	ErrImage = errors.New("unreadable image")
)

// Result is a decoded symbol.
type Result struct {
	Text   string `json:"product"`
	Format string `json:"format"`
}

type namedReader struct {
	format string
	build  func() gozxing.Reader
}

// Decoder tries each supported symbology in turn. Readers carry scratch
// state, so a fresh set is built per image.
type Decoder struct {
	MaxBytes  int64
	MaxPixels int64
	readers   []namedReader
}

// NewDecoder returns a decoder for EAN-13, EAN-8, UPC-A, UPC-E, Code 128,
// Code 39 and QR codes.
func NewDecoder() *Decoder {
	return &Decoder{
		MaxBytes: DefaultMaxBytes,
		readers: []namedReader{
			{"EAN_13", func() gozxing.Reader { return oned.NewEAN13Reader() }},
			{"EAN_8", func() gozxing.Reader { return oned.NewEAN8Reader() }},
			{"UPC_A", func() gozxing.Reader { return oned.NewUPCAReader() }},
			{"UPC_E", func() gozxing.Reader { return oned.NewUPCEReader() }},
			{"CODE_128", func() gozxing.Reader { return oned.NewCode128Reader() }},
			{"CODE_39", func() gozxing.Reader { return oned.NewCode39Reader() }},
			{"QR_CODE", func() gozxing.Reader { return qrcode.NewQRCodeReader() }},
		},
	}
}

// Decode reads an image and returns the first symbol any reader accepts. The
// header is checked against MaxPixels before any pixel data is decoded.
func (d *Decoder) Decode(ctx context.Context, r io.Reader) (Result, error) {
	limit := d.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	maxPixels := d.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrImage, err)
	}
	if int64(len(data)) > limit {
		return Result{}, fmt.Errorf("%w: larger than %d bytes", ErrImage, limit)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return Result{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImage, cfg.Width, cfg.Height, maxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrImage, err)
	}
	return d.DecodeImage(ctx, img)
}

// DecodeImage runs the readers over an already decoded image.
func (d *Decoder) DecodeImage(ctx context.Context, img image.Image) (Result, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrImage, err)
	}
	hints := map[gozxing.DecodeHintType]interface{}{gozxing.DecodeHintType_TRY_HARDER: true}
	for _, nr := range d.readers {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, err := nr.build().Decode(bmp, hints)
		if err != nil || res == nil {
			continue
		}
		return Result{Text: res.GetText(), Format: nr.format}, nil
	}
	return Result{}, ErrNoBarcode
}
