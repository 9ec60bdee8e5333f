package decode

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"scanchannels/internal/models"
)

// RawExt is the file extension of the raw array interchange format.
//
// Layout, little-endian:
//
//	magic   [4]byte  "SCN1"
//	dtype   uint8    see DType
//	rank    uint8
//	dims    [rank]uint32, outermost first
//	data    product(dims) samples of dtype
const RawExt = ".scn"

var rawMagic = [4]byte{'S', 'C', 'N', '1'}

// maxRawRank bounds the header so corrupt files fail early.
const maxRawRank = 8

// DType is the sample type of a raw array.
type DType uint8

const (
	Uint8 DType = iota + 1
	Uint16
	Float32
	Float64
)

// Size returns the sample size in bytes.
func (d DType) Size() int {
	switch d {
	case Uint8:
		return 1
	case Uint16:
		return 2
	case Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

func (d DType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// ErrBadMagic is returned when a raw file does not start with the format magic.
var ErrBadMagic = errors.New("not a raw scan array")

// DecodeRaw reads an array in the raw interchange format.
func DecodeRaw(r io.Reader) (*models.Array, error) {
	br := bufio.NewReader(r)

	var header struct {
		Magic [4]byte
		DType DType
		Rank  uint8
	}
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if header.Magic != rawMagic {
		return nil, ErrBadMagic
	}
	if header.DType.Size() == 0 {
		return nil, fmt.Errorf("unsupported sample type %v", header.DType)
	}
	if header.Rank == 0 || header.Rank > maxRawRank {
		return nil, fmt.Errorf("unsupported rank %d", header.Rank)
	}

	dims := make([]uint32, header.Rank)
	if err := binary.Read(br, binary.LittleEndian, dims); err != nil {
		return nil, fmt.Errorf("failed to read dimensions: %w", err)
	}

	shape := make([]int, len(dims))
	n := 1
	for i, d := range dims {
		if d == 0 {
			return nil, fmt.Errorf("zero-sized axis %d", i)
		}
		shape[i] = int(d)
		n *= int(d)
		if n > math.MaxInt32 {
			return nil, fmt.Errorf("array of shape %v is too large", shape[:i+1])
		}
	}

	data, err := readSamples(br, header.DType, n)
	if err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}

	return models.NewArray(data, shape...)
}

// sampleChunk is the number of samples read per step. The output grows as
// samples arrive, so a header claiming more data than the file holds fails
// with io.ErrUnexpectedEOF instead of allocating the claimed size up front.
const sampleChunk = 1 << 16

// readSamples reads n little-endian samples of type dtype.
func readSamples(r io.Reader, dtype DType, n int) ([]float64, error) {
	size := dtype.Size()
	buf := make([]byte, min(n, sampleChunk)*size)
	data := make([]float64, 0, min(n, sampleChunk))

	for len(data) < n {
		k := min(n-len(data), sampleChunk)
		chunk := buf[:k*size]
		if _, err := io.ReadFull(r, chunk); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		for i := 0; i < k; i++ {
			b := chunk[i*size:]
			var v float64
			switch dtype {
			case Uint8:
				v = float64(b[0])
			case Uint16:
				v = float64(binary.LittleEndian.Uint16(b))
			case Float32:
				v = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
			case Float64:
				v = math.Float64frombits(binary.LittleEndian.Uint64(b))
			}
			data = append(data, v)
		}
	}
	return data, nil
}

// EncodeRaw writes a in the raw interchange format using sample type dtype.
// Values are converted with Go's numeric conversion rules.
func EncodeRaw(w io.Writer, a *models.Array, dtype DType) error {
	if dtype.Size() == 0 {
		return fmt.Errorf("unsupported sample type %v", dtype)
	}
	if a.Rank() == 0 || a.Rank() > maxRawRank {
		return fmt.Errorf("unsupported rank %d", a.Rank())
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(rawMagic[:]); err != nil {
		return err
	}
	if err := bw.WriteByte(byte(dtype)); err != nil {
		return err
	}
	if err := bw.WriteByte(byte(a.Rank())); err != nil {
		return err
	}
	for _, d := range a.Shape {
		if err := binary.Write(bw, binary.LittleEndian, uint32(d)); err != nil {
			return err
		}
	}

	var err error
	switch dtype {
	case Uint8:
		buf := make([]uint8, len(a.Data))
		for i, v := range a.Data {
			buf[i] = uint8(v)
		}
		_, err = bw.Write(buf)
	case Uint16:
		buf := make([]uint16, len(a.Data))
		for i, v := range a.Data {
			buf[i] = uint16(v)
		}
		err = binary.Write(bw, binary.LittleEndian, buf)
	case Float32:
		buf := make([]float32, len(a.Data))
		for i, v := range a.Data {
			buf[i] = float32(v)
		}
		err = binary.Write(bw, binary.LittleEndian, buf)
	case Float64:
		err = binary.Write(bw, binary.LittleEndian, a.Data)
	}
	if err != nil {
		return err
	}
	return bw.Flush()
}
