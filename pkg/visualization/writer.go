package visualization

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// SavePNG encodes img as PNG at filename. The image is written to a
// temporary file in the same directory and renamed into place, so readers
// never see a partial file. It returns the number of bytes written.
func SavePNG(img image.Image, filename string) (int64, error) {
	dir := filepath.Dir(filename)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if err := png.Encode(tmp, img); err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to encode %s: %w", filename, err)
	}

	info, err := tmp.Stat()
	if err != nil {
		cleanup()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	if err := os.Rename(tmpName, filename); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to move %s into place: %w", filename, err)
	}

	return info.Size(), nil
}

// LoadPNG reads a PNG file written by SavePNG.
func LoadPNG(filename string) (image.Image, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return png.Decode(file)
}
