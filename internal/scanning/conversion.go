package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// imageKind is the source format of an upload, as far as conversion cares
type imageKind int

const (
	kindPNG imageKind = iota
	kindPDF
	kindHEIC
	kindOther
)

// heicBrands are the ftyp brands written by phones for HEIC/HEIF photos
var heicBrands = map[string]bool{"heic": true, "heif": true, "mif1": true, "msf1": true}

// detectKind classifies an upload by its bytes first and its MIME type second
func detectKind(data []byte, mimeType string) imageKind {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case bytes.HasPrefix(data, []byte("%PDF")) || mimeType == "application/pdf":
		return kindPDF
	case len(data) >= 12 && string(data[4:8]) == "ftyp" && heicBrands[string(data[8:12])]:
		return kindHEIC
	case strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif"):
		return kindHEIC
	case mimeType == "image/png":
		return kindPNG
	default:
		return kindOther
	}
}

// toPNG renders any supported upload as a PNG image for the vision models.
// Only the first page of a PDF is used.
func toPNG(data []byte, contentType string) ([]byte, error) {
	var (
		img image.Image
		err error
	)

	switch detectKind(data, contentType) {
	case kindPNG:
		return data, nil
	case kindPDF:
		img, err = renderPDF(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
	case kindHEIC:
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("unsupported image format (supported: JPEG, PNG, GIF, HEIC, HEIF, PDF): %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func renderPDF(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}
