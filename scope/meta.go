package scope

import (
	"math"
	"time"

	"github.com/astrogo/fitsio"

	"github.com/lightsheet-lab/gosols/optics"
)

// metadataCards flattens the applied settings and everything derived from
// them into FITS header cards, so a saved file is self-describing.
func metadataCards(s Settings, d Derived, description string) []fitsio.Card {
	now := time.Now()
	cards := []fitsio.Card{
		{Name: "DATE-OBS", Value: now.Format("2006-01-02T15:04:05"), Comment: "acquisition time, local"},
		{Name: "INSTRUME", Value: "HT-SOLS", Comment: "high throughput oblique plane microscope"},
		{Name: "PROJMODE", Value: s.ProjectionMode, Comment: "single frame projection mode"},
		{Name: "PROJANG", Value: s.ProjectionAngleDeg, Comment: "[deg] projection angle"},
		{Name: "EMFILTER", Value: s.EmissionFilter, Comment: "emission filter"},
		{Name: "ILLUMUS", Value: s.IlluminationTimeUs, Comment: "[us] illumination time per frame"},
		{Name: "HEIGHTPX", Value: s.HeightPx, Comment: "[px] legalized image height"},
		{Name: "WIDTHPX", Value: s.WidthPx, Comment: "[px] legalized image width"},
		{Name: "TSMODE", Value: s.TimestampMode, Comment: "camera timestamp mode"},
		{Name: "VOXASP", Value: s.VoxelAspectRatio, Comment: "achieved voxel aspect ratio"},
		{Name: "SCANUM", Value: s.ScanRangeUm, Comment: "[um] achieved scan range"},
		{Name: "VOLSBUF", Value: s.VolumesPerBuffer, Comment: "volumes per buffer"},
		{Name: "AUTOFOC", Value: s.AutofocusEnabled, Comment: "autofocus servo enabled"},
		{Name: "SAMPLERI", Value: s.SampleRI, Comment: "sample refractive index"},
		{Name: "LSFOCV", Value: s.LSFocusAdjustV, Comment: "[V] light sheet focus adjust"},
		{Name: "LSDITHV", Value: s.LSAngularDitherV, Comment: "[V] light sheet angular dither"},
		{Name: "PREFRAME", Value: s.CameraPreframes, Comment: "discarded lead-in frames"},
		{Name: "SCANSTPX", Value: d.ScanStepSizePx, Comment: "[px] scan step size"},
		{Name: "SCANSTUM", Value: d.ScanStepSizeUm, Comment: "[um] scan step size"},
		{Name: "SLICES", Value: d.SlicesPerVolume, Comment: "slices per volume"},
		{Name: "SHEARPX", Value: d.GalvoShearPx, Comment: "[px] projection galvo shear"},
		{Name: "PROJHPX", Value: d.ProjectionHeightPx, Comment: "[px] projection frame height"},
		{Name: "SAMPLEPX", Value: d.SamplePxUm, Comment: "[um] pixel size at the sample"},
		{Name: "ZOOMFMM", Value: d.ZoomFocalLengthMM, Comment: "[mm] zoom lens focal length"},
		{Name: "BUFSECS", Value: d.BufferSeconds, Comment: "[s] buffer play time"},
		{Name: "VOLSPS", Value: d.VolumesPerSecond, Comment: "volumetric rate"},
		{Name: "MAG1", Value: optics.M1, Comment: "primary objective magnification"},
		{Name: "MAG3", Value: optics.M3, Comment: "tertiary objective magnification"},
		{Name: "CAMPXUM", Value: optics.CameraPxUm, Comment: "[um] camera pixel pitch"},
		{Name: "TILTDEG", Value: optics.Tilt * 180 / math.Pi, Comment: "[deg] detection tilt"},
	}
	for i, ch := range s.Channels {
		cards = append(cards,
			fitsio.Card{Name: chKey("CHAN", i), Value: ch.Source, Comment: "illumination source"},
			fitsio.Card{Name: chKey("PWR", i), Value: ch.Power, Comment: "[%] illumination power"})
	}
	if description != "" {
		cards = append(cards, fitsio.Card{Name: "COMMENT", Value: description})
	}
	return cards
}

// chKey builds an indexed 8-character FITS keyword.
func chKey(prefix string, i int) string {
	// FITS keywords are at most 8 chars; channels stay in single digits
	return prefix + string(rune('0'+i))
}
