package debug

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
)

// Format is an image file format for snapshots and dumps.
type Format string

const (
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatTGA  Format = "tga"
)

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "png", "":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	case "tga":
		return FormatTGA, nil
	}
	return "", fmt.Errorf("unsupported image format %q", s)
}

// Encode writes img to w in the given format.
func Encode(w io.Writer, img image.Image, format Format) error {
	var err error
	switch format {
	case FormatPNG:
		err = png.Encode(w, img)
	case FormatWebP:
		err = nativewebp.Encode(w, img, nil)
	case FormatTGA:
		err = tga.Encode(w, img)
	default:
		return fmt.Errorf("unsupported image format %q", format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %v", strings.ToUpper(string(format)), err)
	}
	return nil
}

// SaveImage writes img to path, picking the format from the extension.
func SaveImage(img image.Image, path string) error {
	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %v", path, err)
	}
	defer file.Close()

	if err := Encode(file, img, format); err != nil {
		return err
	}
	b := img.Bounds()
	slog.Info("Snapshot saved", "path", path, "size", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()), "format", strings.ToUpper(string(format)))
	return nil
}

// SaveImageToDir saves img as baseName plus a timestamp in directory, or in
// the working directory when directory is empty. It returns the file path.
func SaveImageToDir(img image.Image, baseName, directory string, format Format) (string, error) {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s.%s", baseName, timestamp, format)

	outputDir := directory
	if outputDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %v", err)
		}
		outputDir = cwd
	}

	path := filepath.Join(outputDir, filename)
	return path, SaveImage(img, path)
}

// LoadImage decodes a PNG or TGA reference image.
func LoadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}
	defer file.Close()

	var img image.Image
	if strings.EqualFold(filepath.Ext(path), ".tga") {
		img, err = tga.Decode(file)
	} else {
		img, err = png.Decode(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %v", path, err)
	}
	return img, nil
}
