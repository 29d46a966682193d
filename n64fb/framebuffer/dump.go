package framebuffer

import (
	"fmt"
	"image"

	"github.com/valerio/go-n64fb/n64fb/debug"
	"github.com/valerio/go-n64fb/n64fb/gpu"
)

// ReadImage reads the native-size colour contents of t.
func (t *Target) ReadImage() (*image.NRGBA, error) {
	rect := image.Rect(0, 0, t.scaled(t.Width), t.scaled(t.Height))
	img, err := gpu.ReadImage(t.env().GPU, t.ReadFBO(), rect)
	if err != nil {
		return nil, fmt.Errorf("failed to read target %08x: %v", t.StartAddress, err)
	}
	return img, nil
}

// Dump writes every live target to directory, one image per target named
// after its address and width. It returns the written paths.
func (r *Registry) Dump(directory string, format debug.Format) ([]string, error) {
	var paths []string
	for _, t := range r.Targets() {
		img, err := t.ReadImage()
		if err != nil {
			return paths, err
		}
		name := fmt.Sprintf("fb_%08x_%d", t.StartAddress, t.Width)
		path, err := debug.SaveImageToDir(img, name, directory, format)
		if err != nil {
			return paths, fmt.Errorf("failed to dump target %08x: %v", t.StartAddress, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
