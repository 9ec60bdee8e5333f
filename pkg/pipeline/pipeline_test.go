package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"scanchannels/internal/models"
	"scanchannels/pkg/config"
	"scanchannels/pkg/visualization"
)

var testTints = []color.RGBA{
	{R: 255, G: 255, B: 255},
	{R: 0, G: 255, B: 100},
	{R: 255, G: 0, B: 0},
	{R: 100, G: 100, B: 255},
}

// testChannels returns a four channel table with the given thresholds
// (zero when omitted).
func testChannels(t *testing.T, thresholds ...float64) config.ChannelTable {
	t.Helper()
	chans := make([]config.Channel, len(testTints))
	for i, tint := range testTints {
		chans[i] = config.Channel{Index: i + 1, Tint: tint}
		if i < len(thresholds) {
			chans[i].Threshold = thresholds[i]
		}
	}
	table, err := config.NewChannelTable(chans...)
	if err != nil {
		t.Fatalf("Failed to build channel table: %v", err)
	}
	return table
}

func testRotations(t *testing.T, turns map[string]int) config.RotationTable {
	t.Helper()
	table, err := config.NewRotationTable(turns)
	if err != nil {
		t.Fatalf("Failed to build rotation table: %v", err)
	}
	return table
}

// testArray fills an array of the given shape with a pattern that differs
// per plane and per pixel.
func testArray(t *testing.T, shape ...int) *models.Array {
	t.Helper()
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = float64((i*31)%977) + 10
	}
	arr, err := models.NewArray(data, shape...)
	if err != nil {
		t.Fatalf("Failed to build array: %v", err)
	}
	return arr
}

func loadNRGBA(t *testing.T, path string) *image.NRGBA {
	t.Helper()
	img, err := visualization.LoadPNG(path)
	if err != nil {
		t.Fatalf("Failed to load %s: %v", path, err)
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		t.Fatalf("Expected *image.NRGBA from %s, got %T", path, img)
	}
	return nrgba
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			n++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("Failed to walk %s: %v", root, err)
	}
	return n
}

func TestProcessFlatThreeChannels(t *testing.T) {
	dir := t.TempDir()
	p := New(testChannels(t), testRotations(t, nil))

	names, err := p.ProcessFlat(testArray(t, 3, 64, 64), "week5", dir)
	if err != nil {
		t.Fatalf("ProcessFlat failed: %v", err)
	}

	expected := []string{"week5_channel1.png", "week5_channel2.png", "week5_channel3.png"}
	if !reflect.DeepEqual(names, expected) {
		t.Errorf("Expected names %v, got %v", expected, names)
	}
	if n := countFiles(t, dir); n != 3 {
		t.Errorf("Expected 3 files, got %d", n)
	}

	for i, name := range names {
		img := loadNRGBA(t, filepath.Join(dir, name))
		if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
			t.Errorf("%s: expected 64x64, got %dx%d", name, b.Dx(), b.Dy())
		}
		tint := testTints[i]
		for y := 0; y < 64; y++ {
			for x := 0; x < 64; x++ {
				px := img.NRGBAAt(x, y)
				if px.R != tint.R || px.G != tint.G || px.B != tint.B {
					t.Fatalf("%s pixel (%d,%d): expected tint %v, got %v", name, x, y, tint, px)
				}
			}
		}
	}
}

func TestProcessFlatSinglePlane(t *testing.T) {
	dir := t.TempDir()
	p := New(testChannels(t), testRotations(t, nil))

	// leading size-1 axes are squeezed away
	names, err := p.ProcessFlat(testArray(t, 1, 1, 10, 12), "week7", dir)
	if err != nil {
		t.Fatalf("ProcessFlat failed: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"week7_channel1.png"}) {
		t.Errorf("Expected a single channel1 file, got %v", names)
	}
}

func TestProcessDetailedTwoChannelsThreePlanes(t *testing.T) {
	root := t.TempDir()
	p := New(testChannels(t), testRotations(t, nil))

	channels, planes, err := p.ProcessDetailed(testArray(t, 2, 3, 32, 32), "week1_kmc2", root)
	if err != nil {
		t.Fatalf("ProcessDetailed failed: %v", err)
	}
	if channels != 2 || planes != 3 {
		t.Errorf("Expected (2, 3), got (%d, %d)", channels, planes)
	}
	if n := countFiles(t, root); n != 6 {
		t.Errorf("Expected 6 files, got %d", n)
	}

	for c := 1; c <= 2; c++ {
		for z := 0; z < 3; z++ {
			path := filepath.Join(root, "week1_kmc2", fmt.Sprintf("channel%d", c), fmt.Sprintf("slice%d.png", z))
			if path != DetailedPath(root, "week1_kmc2", c, z) {
				t.Errorf("Unexpected path convention %s", DetailedPath(root, "week1_kmc2", c, z))
			}
			img := loadNRGBA(t, path)
			if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 32 {
				t.Errorf("%s: expected 32x32, got %dx%d", path, b.Dx(), b.Dy())
			}
		}
	}
}

func TestProcessDetailedLowerRanks(t *testing.T) {
	p := New(testChannels(t), testRotations(t, nil))

	tests := []struct {
		shape    []int
		channels int
		planes   int
	}{
		{[]int{8, 8}, 1, 1},
		{[]int{3, 8, 8}, 3, 1},
		{[]int{1, 4, 1, 8, 8}, 4, 1},
	}
	for _, tc := range tests {
		root := t.TempDir()
		c, z, err := p.ProcessDetailed(testArray(t, tc.shape...), "week3", root)
		if err != nil {
			t.Fatalf("shape %v: ProcessDetailed failed: %v", tc.shape, err)
		}
		if c != tc.channels || z != tc.planes {
			t.Errorf("shape %v: expected (%d, %d), got (%d, %d)", tc.shape, tc.channels, tc.planes, c, z)
		}
		if n := countFiles(t, root); n != tc.channels*tc.planes {
			t.Errorf("shape %v: expected %d files, got %d", tc.shape, tc.channels*tc.planes, n)
		}
	}
}

func TestUnsupportedRanksWriteNothing(t *testing.T) {
	p := New(testChannels(t), testRotations(t, nil))

	tests := []struct {
		shape    []int
		flat     bool
		detailed bool
	}{
		{[]int{16}, false, false},
		{[]int{2, 2, 2, 3, 3}, false, false},
		{[]int{2, 3, 8, 8}, false, true},
	}

	for _, tc := range tests {
		arr := testArray(t, tc.shape...)

		dir := filepath.Join(t.TempDir(), "flat")
		_, err := p.ProcessFlat(arr, "week9", dir)
		if tc.flat != (err == nil) {
			t.Errorf("shape %v: unexpected flat result %v", tc.shape, err)
		}
		if err != nil {
			if !errors.Is(err, ErrUnsupportedShape) {
				t.Errorf("shape %v: expected ErrUnsupportedShape, got %v", tc.shape, err)
			}
			var se *ShapeError
			if !errors.As(err, &se) || se.Dataset != "week9" || !reflect.DeepEqual(se.Shape, tc.shape) {
				t.Errorf("shape %v: expected ShapeError with dataset and shape, got %v", tc.shape, err)
			}
			if _, statErr := os.Stat(dir); !os.IsNotExist(statErr) {
				t.Errorf("shape %v: expected flat output dir to be absent", tc.shape)
			}
		}

		root := filepath.Join(t.TempDir(), "detailed")
		_, _, err = p.ProcessDetailed(arr, "week9", root)
		if tc.detailed != (err == nil) {
			t.Errorf("shape %v: unexpected detailed result %v", tc.shape, err)
		}
		if err != nil {
			if !errors.Is(err, ErrUnexpectedRank) || !IsShapeError(err) {
				t.Errorf("shape %v: expected ErrUnexpectedRank, got %v", tc.shape, err)
			}
			if _, statErr := os.Stat(root); !os.IsNotExist(statErr) {
				t.Errorf("shape %v: expected detailed output root to be absent", tc.shape)
			}
		}
	}
}

func TestUnknownChannelWritesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	p := New(testChannels(t), testRotations(t, nil))

	_, err := p.ProcessFlat(testArray(t, 5, 8, 8), "week2", dir)
	if !errors.Is(err, config.ErrUnknownChannel) {
		t.Fatalf("Expected ErrUnknownChannel, got %v", err)
	}
	if n := countFiles(t, dir); n != 0 {
		t.Errorf("Expected no files, got %d", n)
	}
}

func TestMissingRotationMatchesZero(t *testing.T) {
	arr := testArray(t, 2, 6, 9)

	dirA, dirB := t.TempDir(), t.TempDir()
	unlisted := New(testChannels(t), testRotations(t, map[string]int{"week0": 3}))
	explicit := New(testChannels(t), testRotations(t, map[string]int{"week8": 0}))

	if _, err := unlisted.ProcessFlat(arr, "week8", dirA); err != nil {
		t.Fatalf("ProcessFlat failed: %v", err)
	}
	if _, err := explicit.ProcessFlat(arr, "week8", dirB); err != nil {
		t.Fatalf("ProcessFlat failed: %v", err)
	}

	for c := 1; c <= 2; c++ {
		a, err := os.ReadFile(FlatPath(dirA, "week8", c))
		if err != nil {
			t.Fatalf("Failed to read output: %v", err)
		}
		b, err := os.ReadFile(FlatPath(dirB, "week8", c))
		if err != nil {
			t.Fatalf("Failed to read output: %v", err)
		}
		if !bytes.Equal(a, b) {
			t.Errorf("channel %d: unlisted dataset differs from rotation 0", c)
		}
	}
}

func TestRotationApplied(t *testing.T) {
	// 4 rows x 6 cols with the only signal in the top-right corner
	data := make([]float64, 4*6)
	data[5] = 100
	arr, err := models.NewArray(data, 4, 6)
	if err != nil {
		t.Fatalf("Failed to build array: %v", err)
	}

	for _, tc := range []struct {
		k    int
		w, h int
		x, y int
	}{
		{0, 6, 4, 5, 0},
		{1, 4, 6, 0, 0},
		{2, 6, 4, 0, 3},
		{3, 4, 6, 3, 5},
	} {
		dir := t.TempDir()
		p := New(testChannels(t), testRotations(t, map[string]int{"week2": tc.k}))
		if _, err := p.ProcessFlat(arr, "week2", dir); err != nil {
			t.Fatalf("k=%d: ProcessFlat failed: %v", tc.k, err)
		}

		img := loadNRGBA(t, FlatPath(dir, "week2", 1))
		if b := img.Bounds(); b.Dx() != tc.w || b.Dy() != tc.h {
			t.Errorf("k=%d: expected %dx%d, got %dx%d", tc.k, tc.w, tc.h, b.Dx(), b.Dy())
			continue
		}
		if a := img.NRGBAAt(tc.x, tc.y).A; a != 255 {
			t.Errorf("k=%d: expected signal at (%d,%d), alpha is %d", tc.k, tc.x, tc.y, a)
		}
	}
}

func TestDegeneratePlaneIsTransparent(t *testing.T) {
	dir := t.TempDir()
	p := New(testChannels(t, 0.1, 0.2), testRotations(t, nil))

	arr, err := models.NewArray(make([]float64, 2*5*5), 2, 5, 5)
	if err != nil {
		t.Fatalf("Failed to build array: %v", err)
	}
	outputs, err := p.Process(arr, "blank", dir, Flat{})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	for _, o := range outputs {
		if o.Coverage != 0 || o.MeanAlpha != 0 {
			t.Errorf("channel %d: expected no signal, got coverage %f mean %f", o.Channel, o.Coverage, o.MeanAlpha)
		}
		img := loadNRGBA(t, o.Path)
		for i := 3; i < len(img.Pix); i += 4 {
			if img.Pix[i] != 0 {
				t.Fatalf("channel %d: expected fully transparent image", o.Channel)
			}
		}
		tint := testTints[o.Channel-1]
		if px := img.NRGBAAt(2, 2); px.R != tint.R || px.G != tint.G || px.B != tint.B {
			t.Errorf("channel %d: expected tint %v on transparent pixel, got %v", o.Channel, tint, px)
		}
	}
}

func TestProcessReportsCoverage(t *testing.T) {
	dir := t.TempDir()
	p := New(testChannels(t), testRotations(t, nil))

	// half of the pixels carry signal
	arr, err := models.NewArray([]float64{0, 0, 4, 4}, 2, 2)
	if err != nil {
		t.Fatalf("Failed to build array: %v", err)
	}
	outputs, err := p.Process(arr, "half", dir, Flat{})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(outputs) != 1 {
		t.Fatalf("Expected 1 output, got %d", len(outputs))
	}
	if outputs[0].Coverage != 0.5 {
		t.Errorf("Expected coverage 0.5, got %f", outputs[0].Coverage)
	}
	if outputs[0].MeanAlpha != 127.5 {
		t.Errorf("Expected mean alpha 127.5, got %f", outputs[0].MeanAlpha)
	}
	if outputs[0].Bytes <= 0 {
		t.Errorf("Expected a positive byte count, got %d", outputs[0].Bytes)
	}
}
