package recon

import (
	"testing"
)

// identityStd is small enough that the Gaussian kernel truncates to a single
// tap, making the smoothing step a no-op for exact-value assertions.
const identityStd = 0.1

func TestNativePlacesSlicesAtIntegerOffsets(t *testing.T) {
	s := NewStack(1, 3, 1, 4, 5)
	for z := 0; z < 3; z++ {
		s.Set(0, z, 0, 0, 2, uint16(100+z))
	}
	out := Native(s, 2)
	if out.Y != 4+2*2 {
		t.Fatalf("native height %d, want %d", out.Y, 8)
	}
	for z := 0; z < 3; z++ {
		got := out.At(0, z, 0, 2*z, 2)
		if got != uint16(100+z) {
			t.Errorf("slice %d pixel %d, want %d", z, got, 100+z)
		}
	}
	var nonzero int
	for _, v := range out.Data {
		if v != 0 {
			nonzero++
		}
	}
	if nonzero != 3 {
		t.Errorf("%d nonzero pixels after shear, want 3", nonzero)
	}
}

func TestPreviewMatchesShape(t *testing.T) {
	g := Geometry{SamplePxUm: 1, ScanStepSizePx: 1, LinePx: 2, TimestampMode: "off"}
	s := NewStack(2, 3, 2, 20, 16)
	s.Set(0, 1, 0, 10, 8, 4000)
	pv := Preview(s, g)
	wt, wc, wy, wx := PreviewShape(g, s.T, s.Z, s.C, s.Y, s.X)
	if pv.T != wt || pv.C != wc || pv.Y != wy || pv.X != wx {
		t.Fatalf("preview (%d,%d,%d,%d), want (%d,%d,%d,%d)",
			pv.T, pv.C, pv.Y, pv.X, wt, wc, wy, wx)
	}
	var nonzero int
	for _, v := range pv.Data {
		if v != 0 {
			nonzero++
		}
	}
	if nonzero == 0 {
		t.Error("preview is entirely zero")
	}
}

func TestPreviewProjectionMode(t *testing.T) {
	g := Geometry{ProjectionMode: true, ProjectionAngleDeg: 0,
		SamplePxUm: 1, ScanStepSizePx: 1, LinePx: 2, TimestampMode: "off"}
	s := NewStack(1, 1, 1, 100, 16)
	pv := Preview(s, g)
	// sin(55 deg) * 100 rows
	if pv.Y != 82 {
		t.Errorf("projection preview height %d, want 82", pv.Y)
	}
	if pv.X != 16 {
		t.Errorf("projection preview width %d, want 16", pv.X)
	}
}

func TestPreviewShapeTimestampRows(t *testing.T) {
	g := Geometry{SamplePxUm: 1, ScanStepSizePx: 1, LinePx: 2, TimestampMode: "off"}
	_, _, plain, _ := PreviewShape(g, 1, 2, 1, 100, 16)
	g.TimestampMode = TimestampBinaryASCII
	_, _, stamped, _ := PreviewShape(g, 1, 2, 1, 100, 16)
	if stamped >= plain {
		t.Errorf("timestamp rows not excluded: %d >= %d", stamped, plain)
	}
}

func TestPreviewIntoRejectsWrongShape(t *testing.T) {
	g := Geometry{SamplePxUm: 1, ScanStepSizePx: 1, LinePx: 2, TimestampMode: "off"}
	s := NewStack(1, 2, 1, 20, 16)
	if err := PreviewInto(s, g, NewCanvas(1, 1, 5, 5)); err == nil {
		t.Fatal("expected shape mismatch error, got nil")
	}
}

func TestRoiBoxFindsSignalBoundaries(t *testing.T) {
	s := NewStack(1, 5, 1, 20, 16)
	for i := range s.Data {
		s.Data[i] = 100 // uniform background
	}
	for z := 1; z <= 3; z++ {
		for y := 5; y <= 10; y++ {
			for x := 4; x <= 12; x++ {
				s.Set(0, z, 0, y, x, 1000)
			}
		}
	}
	b := RoiBox(s, RoiParams{GaussianStd: identityStd})
	want := Box{ZMin: 1, ZMax: 3, YMin: 5, YMax: 10, XMin: 4, XMax: 12}
	if b != want {
		t.Fatalf("box %+v, want %+v", b, want)
	}
	crop := Roi(s, RoiParams{GaussianStd: identityStd})
	if crop.Z != 3 || crop.Y != 6 || crop.X != 9 {
		t.Errorf("crop (%d,%d,%d), want (3,6,9)", crop.Z, crop.Y, crop.X)
	}
	if crop.At(0, 0, 0, 0, 0) != 1000 {
		t.Errorf("crop corner %d, want 1000", crop.At(0, 0, 0, 0, 0))
	}
}

func TestRoiBoxNoSignalKeepsFullRange(t *testing.T) {
	s := NewStack(1, 4, 1, 12, 10)
	for i := range s.Data {
		s.Data[i] = 100
	}
	b := RoiBox(s, RoiParams{GaussianStd: identityStd})
	want := Box{ZMin: 0, ZMax: 3, YMin: 0, YMax: 11, XMin: 0, XMax: 9}
	if b != want {
		t.Fatalf("box %+v, want %+v", b, want)
	}
}

func TestRoiBoxUnionsChannels(t *testing.T) {
	s := NewStack(1, 3, 2, 12, 10)
	for i := range s.Data {
		s.Data[i] = 100
	}
	s.Set(0, 0, 0, 2, 2, 1000) // channel 0 signal near origin
	s.Set(0, 2, 1, 9, 8, 1000) // channel 1 signal near far corner
	b := RoiBox(s, RoiParams{GaussianStd: identityStd})
	want := Box{ZMin: 0, ZMax: 2, YMin: 2, YMax: 9, XMin: 2, XMax: 8}
	if b != want {
		t.Fatalf("box %+v, want %+v", b, want)
	}
}

func TestTraditionalBoundingBox(t *testing.T) {
	native := NewStack(1, 4, 1, 10, 6)
	native.Set(0, 2, 0, 5, 3, 5000)
	out := Traditional(native, 1)
	// 4 slices at aspect tan(55 deg) rescale to 6; the rotated bounding
	// box of a 6x10 slab at 55 deg is 12x11.
	if out.Z != 12 || out.Y != 11 || out.X != 6 {
		t.Fatalf("traditional (%d,%d,%d), want (12,11,6)", out.Z, out.Y, out.X)
	}
	var nonzero int
	for _, v := range out.Data {
		if v != 0 {
			nonzero++
		}
	}
	if nonzero == 0 {
		t.Error("rotated volume lost the signal")
	}
}

func TestEstimateZMaxIntensity(t *testing.T) {
	p := ZParams{HeightPx: 100, WidthPx: 50, SamplePxUm: 1, LinePx: 5,
		TimestampMode: "off", Method: ZMaxIntensity, GaussianStd: identityStd}
	img := newImage(100, 50)
	// axial index 40 is preview row zPx-1-40 = 41
	for x := 5; x < 50; x++ {
		img.Set(41, x, 1000)
	}
	z, err := EstimateZ(img, p)
	if err != nil {
		t.Fatal(err)
	}
	if z != 40 {
		t.Errorf("z estimate %v um, want 40", z)
	}
}

func TestEstimateZMaxGradient(t *testing.T) {
	p := ZParams{HeightPx: 100, WidthPx: 50, SamplePxUm: 1, LinePx: 5,
		TimestampMode: "off", Method: ZMaxGradient, GaussianStd: identityStd}
	img := newImage(100, 50)
	// bright above axial index 40: a step boundary at 39->40
	for y := 0; y <= 41; y++ {
		for x := 5; x < 50; x++ {
			img.Set(y, x, 1000)
		}
	}
	z, err := EstimateZ(img, p)
	if err != nil {
		t.Fatal(err)
	}
	if z != 39 {
		t.Errorf("z estimate %v um, want 39", z)
	}
}

func TestEstimateZRejectsUnknownMethod(t *testing.T) {
	_, err := EstimateZ(newImage(100, 50), ZParams{HeightPx: 100, WidthPx: 50,
		SamplePxUm: 1, Method: "sideways"})
	if err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestWrapStackLengthCheck(t *testing.T) {
	if _, err := WrapStack(make([]uint16, 10), 1, 2, 1, 2, 2); err == nil {
		t.Fatal("expected length mismatch error")
	}
	s, err := WrapStack(make([]uint16, 8), 1, 2, 1, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	s.Set(0, 1, 0, 1, 1, 7)
	if s.Data[7] != 7 {
		t.Errorf("tzcyx indexing broken: %v", s.Data)
	}
}
