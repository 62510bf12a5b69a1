package helper

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

const (
	maxImageSide     = 1600
	thumbnailSide    = 72
	imageQuality     = 85
	thumbnailQuality = 60
)

var ErrEmptyMedia = errors.New("media file is empty")

// PreparedMedia is an upload ready to be attached to outgoing messages.
type PreparedMedia struct {
	Data      []byte
	MimeType  string
	FileName  string
	Thumbnail []byte
	Width     int
	Height    int
}

// PrepareMedia sniffs the content type and, for images, re-encodes to JPEG
// (webp included), bounds the size and builds the inline thumbnail. Other
// files are passed through untouched.
func PrepareMedia(data []byte, filename string) (*PreparedMedia, error) {
	if len(data) == 0 {
		return nil, ErrEmptyMedia
	}

	mimeType := DetectMimeType(data, filename)
	out := &PreparedMedia{
		Data:     data,
		MimeType: mimeType,
		FileName: SanitizeFilename(filename),
	}
	if !strings.HasPrefix(mimeType, "image/") || mimeType == "image/gif" {
		return out, nil
	}

	img, err := decodeImage(data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := img.Bounds()
	if b.Dx() > maxImageSide || b.Dy() > maxImageSide {
		img = imaging.Fit(img, maxImageSide, maxImageSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(imageQuality)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	var thumb bytes.Buffer
	small := imaging.Thumbnail(img, thumbnailSide, thumbnailSide, imaging.Lanczos)
	if err := imaging.Encode(&thumb, small, imaging.JPEG, imaging.JPEGQuality(thumbnailQuality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	out.Data = buf.Bytes()
	out.MimeType = "image/jpeg"
	out.FileName = strings.TrimSuffix(out.FileName, filepath.Ext(out.FileName)) + ".jpg"
	out.Thumbnail = thumb.Bytes()
	out.Width = img.Bounds().Dx()
	out.Height = img.Bounds().Dy()
	return out, nil
}

// DetectMimeType prefers the sniffed type and falls back to the extension
// when sniffing only finds a generic type.
func DetectMimeType(data []byte, filename string) string {
	sniffed := http.DetectContentType(data)
	if i := strings.Index(sniffed, ";"); i >= 0 {
		sniffed = sniffed[:i]
	}
	if sniffed != "application/octet-stream" && sniffed != "text/plain" {
		return sniffed
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		if i := strings.Index(byExt, ";"); i >= 0 {
			byExt = byExt[:i]
		}
		return byExt
	}
	return sniffed
}

func decodeImage(data []byte, mimeType string) (image.Image, error) {
	if mimeType == "image/webp" {
		return webp.Decode(bytes.NewReader(data))
	}
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}
