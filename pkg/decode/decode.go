// Package decode is the boundary to scan-file decoders. A decoder turns a
// file into an intensity array; framing and acquisition metadata stay on
// the decoder's side.
package decode

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"scanchannels/internal/models"
)

// ErrNoDecoder is returned for files whose extension has no registered decoder.
var ErrNoDecoder = errors.New("no decoder registered")

// Decoder reads one scan into an intensity array.
type Decoder interface {
	Decode(r io.Reader) (*models.Array, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(r io.Reader) (*models.Array, error)

// Decode calls f(r).
func (f DecoderFunc) Decode(r io.Reader) (*models.Array, error) {
	return f(r)
}

// DecodeError carries the failing file; the decoder's error is kept
// unchanged and reachable through errors.Unwrap.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Registry maps lower-case file extensions (with the dot) to decoders.
type Registry struct {
	decoders map[string]Decoder
}

// NewRegistry returns a registry with the built-in decoders.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[string]Decoder)}
	r.Register(".tif", DecoderFunc(DecodeTIFF))
	r.Register(".tiff", DecoderFunc(DecodeTIFF))
	r.Register(RawExt, DecoderFunc(DecodeRaw))
	return r
}

// Register adds or replaces the decoder for ext.
func (r *Registry) Register(ext string, d Decoder) {
	r.decoders[strings.ToLower(ext)] = d
}

// Extensions lists the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.decoders))
	for ext := range r.decoders {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether a decoder is registered for path's extension.
func (r *Registry) Supports(path string) bool {
	_, ok := r.decoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// DecodeFile opens and decodes path. All failures are *DecodeError.
func (r *Registry) DecodeFile(path string) (*models.Array, error) {
	d, ok := r.decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, &DecodeError{Path: path, Err: ErrNoDecoder}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer file.Close()

	arr, err := d.Decode(file)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return arr, nil
}

// DatasetID derives the dataset identifier from a scan path: the base name
// without its extension.
func DatasetID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
