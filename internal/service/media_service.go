package service

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/pkg/utils"
	"golang.org/x/image/webp"
)

const jpegQuality = 85

type NormalizedImage struct {
	Bytes  []byte
	Format models.ImageFormat
}

func (n *NormalizedImage) MIME() string {
	return n.Format.MIME()
}

// NormalizeImage classifies data by its leading bytes. JPEG and PNG pass
// through unchanged, WebP is re-encoded as JPEG, anything else is a
// validation error.
func NormalizeImage(data []byte) (*NormalizedImage, error) {
	kind, _ := filetype.Match(data)

	switch kind {
	case matchers.TypeJpeg:
		return &NormalizedImage{Bytes: data, Format: models.ImageFormatJPEG}, nil
	case matchers.TypePng:
		return &NormalizedImage{Bytes: data, Format: models.ImageFormatPNG}, nil
	case matchers.TypeWebp:
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			slog.Info(err.Error())
			return nil, models.NewValidationError("normalize image", fmt.Errorf("decode webp: %w", err))
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			slog.Info(err.Error())
			return nil, models.NewValidationError("normalize image", fmt.Errorf("encode jpeg: %w", err))
		}
		return &NormalizedImage{Bytes: buf.Bytes(), Format: models.ImageFormatJPEG}, nil
	}

	return nil, models.NewValidationError("normalize image", models.ErrUnsupportedFormat)
}

// MediaHost exposes image bytes at a public URL for platforms that fetch
// media themselves.
type MediaHost interface {
	Host(data []byte, format models.ImageFormat) (url string, release func(), err error)
}

type localMediaHost struct {
	dir     string
	baseURL string
}

// NewMediaHost writes files into dir; they are expected to be served under
// <publicBaseURL>/media/.
func NewMediaHost(dir, publicBaseURL string) MediaHost {
	return &localMediaHost{dir: dir, baseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (h *localMediaHost) Host(data []byte, format models.ImageFormat) (string, func(), error) {
	name, err := utils.NewFileName(format.Extension())
	if err != nil {
		return "", nil, err
	}

	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Info(err.Error())
		return "", nil, fmt.Errorf("failed to write temp media: %w", err)
	}

	release := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove temp media", "path", path, "error", err)
		}
	}
	return h.baseURL + "/media/" + name, release, nil
}
