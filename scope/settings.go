package scope

import (
	"fmt"

	"github.com/lightsheet-lab/gosols/optics"
	"github.com/lightsheet-lab/gosols/recon"
	"github.com/lightsheet-lab/gosols/waveform"
)

// EmissionFilters maps emission filter names to filter wheel slots.
var EmissionFilters = map[string]int{
	"Shutter":             0,
	"Open":                1,
	"ET445/58M":           2,
	"ET525/50M":           3,
	"ET600/50M":           4,
	"ET706/95M":           5,
	"ZET405/488/561/640m": 6,
}

// Timestamp modes the camera understands.
const (
	TimestampOff         = "off"
	TimestampBinary      = "binary"
	TimestampBinaryASCII = recon.TimestampBinaryASCII
)

// Channel pairs an illumination source with its power in percent.
type Channel struct {
	Source string  `json:"source"`
	Power  float64 `json:"power"`
}

// Settings is the complete user-facing state of the microscope.  Requested
// geometry fields (voxel aspect ratio, scan range, image size) are replaced
// by their achieved values when the settings are applied.
type Settings struct {
	ProjectionMode     bool      `json:"projection_mode"`
	ProjectionAngleDeg float64   `json:"projection_angle_deg"`
	Channels           []Channel `json:"channels"`
	EmissionFilter     string    `json:"emission_filter"`
	IlluminationTimeUs float64   `json:"illumination_time_us"`
	HeightPx           int       `json:"height_px"`
	WidthPx            int       `json:"width_px"`
	TimestampMode      string    `json:"timestamp_mode"`
	VoxelAspectRatio   float64   `json:"voxel_aspect_ratio"`
	ScanRangeUm        float64   `json:"scan_range_um"`
	VolumesPerBuffer   int       `json:"volumes_per_buffer"`
	AutofocusEnabled   bool      `json:"autofocus_enabled"`
	SampleRI           float64   `json:"sample_ri"`
	LSFocusAdjustV     float64   `json:"ls_focus_adjust_v"`
	LSAngularDitherV   float64   `json:"ls_angular_dither_v"`
	CameraPreframes    int       `json:"camera_preframes"`
	MaxBytesPerBuffer  int64     `json:"max_bytes_per_buffer"`
	MaxDataBuffers     int       `json:"max_data_buffers"`
	MaxPreviewBuffers  int       `json:"max_preview_buffers"`
	PreviewLinePx      int       `json:"preview_line_px"`
	PreviewCropPx      int       `json:"preview_crop_px"`
}

// DefaultSettings returns the startup defaults.  Channels, filter, timing
// and geometry must still be specified by the first settings application.
func DefaultSettings() Settings {
	return Settings{
		TimestampMode:     TimestampBinaryASCII,
		CameraPreframes:   1,
		MaxBytesPerBuffer: 1 << 31,
		MaxDataBuffers:    4,
		MaxPreviewBuffers: 4,
		PreviewLinePx:     10,
		// the sensor's top and bottom rows are unreliable
		PreviewCropPx: 3,
	}
}

// Move is a one-axis motion request.
type Move struct {
	Target   float64 `json:"target"`
	Relative bool    `json:"relative"`
}

// MoveXY is a stage motion request.
type MoveXY struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Relative bool    `json:"relative"`
}

// Update is a sparse settings change; nil fields are left as they are.
// Motion requests ride along so a position change and a settings change
// commit under the same custody grant.
type Update struct {
	ProjectionMode     *bool     `json:"projection_mode,omitempty"`
	ProjectionAngleDeg *float64  `json:"projection_angle_deg,omitempty"`
	Channels           []Channel `json:"channels,omitempty"`
	EmissionFilter     *string   `json:"emission_filter,omitempty"`
	IlluminationTimeUs *float64  `json:"illumination_time_us,omitempty"`
	HeightPx           *int      `json:"height_px,omitempty"`
	WidthPx            *int      `json:"width_px,omitempty"`
	TimestampMode      *string   `json:"timestamp_mode,omitempty"`
	VoxelAspectRatio   *float64  `json:"voxel_aspect_ratio,omitempty"`
	ScanRangeUm        *float64  `json:"scan_range_um,omitempty"`
	VolumesPerBuffer   *int      `json:"volumes_per_buffer,omitempty"`
	AutofocusEnabled   *bool     `json:"autofocus_enabled,omitempty"`
	SampleRI           *float64  `json:"sample_ri,omitempty"`
	LSFocusAdjustV     *float64  `json:"ls_focus_adjust_v,omitempty"`
	LSAngularDitherV   *float64  `json:"ls_angular_dither_v,omitempty"`
	CameraPreframes    *int      `json:"camera_preframes,omitempty"`
	MaxBytesPerBuffer  *int64    `json:"max_bytes_per_buffer,omitempty"`
	MaxDataBuffers     *int      `json:"max_data_buffers,omitempty"`
	MaxPreviewBuffers  *int      `json:"max_preview_buffers,omitempty"`
	PreviewLinePx      *int      `json:"preview_line_px,omitempty"`
	PreviewCropPx      *int      `json:"preview_crop_px,omitempty"`

	FocusPiezoZUm *Move   `json:"focus_piezo_z_um,omitempty"`
	XYStageMm     *MoveXY `json:"xy_stage_mm,omitempty"`
}

// merge overlays the update onto a settings copy.
func (u Update) merge(s Settings) Settings {
	if u.ProjectionMode != nil {
		s.ProjectionMode = *u.ProjectionMode
	}
	if u.ProjectionAngleDeg != nil {
		s.ProjectionAngleDeg = *u.ProjectionAngleDeg
	}
	if u.Channels != nil {
		s.Channels = append([]Channel(nil), u.Channels...)
	}
	if u.EmissionFilter != nil {
		s.EmissionFilter = *u.EmissionFilter
	}
	if u.IlluminationTimeUs != nil {
		s.IlluminationTimeUs = *u.IlluminationTimeUs
	}
	if u.HeightPx != nil {
		s.HeightPx = *u.HeightPx
	}
	if u.WidthPx != nil {
		s.WidthPx = *u.WidthPx
	}
	if u.TimestampMode != nil {
		s.TimestampMode = *u.TimestampMode
	}
	if u.VoxelAspectRatio != nil {
		s.VoxelAspectRatio = *u.VoxelAspectRatio
	}
	if u.ScanRangeUm != nil {
		s.ScanRangeUm = *u.ScanRangeUm
	}
	if u.VolumesPerBuffer != nil {
		s.VolumesPerBuffer = *u.VolumesPerBuffer
	}
	if u.AutofocusEnabled != nil {
		s.AutofocusEnabled = *u.AutofocusEnabled
	}
	if u.SampleRI != nil {
		s.SampleRI = *u.SampleRI
	}
	if u.LSFocusAdjustV != nil {
		s.LSFocusAdjustV = *u.LSFocusAdjustV
	}
	if u.LSAngularDitherV != nil {
		s.LSAngularDitherV = *u.LSAngularDitherV
	}
	if u.CameraPreframes != nil {
		s.CameraPreframes = *u.CameraPreframes
	}
	if u.MaxBytesPerBuffer != nil {
		s.MaxBytesPerBuffer = *u.MaxBytesPerBuffer
	}
	if u.MaxDataBuffers != nil {
		s.MaxDataBuffers = *u.MaxDataBuffers
	}
	if u.MaxPreviewBuffers != nil {
		s.MaxPreviewBuffers = *u.MaxPreviewBuffers
	}
	if u.PreviewLinePx != nil {
		s.PreviewLinePx = *u.PreviewLinePx
	}
	if u.PreviewCropPx != nil {
		s.PreviewCropPx = *u.PreviewCropPx
	}
	return s
}

// Derived holds every quantity computed from legal settings.  All of it is
// recomputed on every apply; nothing is patched incrementally.
type Derived struct {
	ZoomFocalLengthMM  float64    `json:"zoom_focal_length_mm"`
	SamplePxUm         float64    `json:"sample_px_um"`
	ScanStepSizePx     int        `json:"scan_step_size_px"`
	ScanStepSizeUm     float64    `json:"scan_step_size_um"`
	SlicesPerVolume    int        `json:"slices_per_volume"`
	GalvoShearPx       int        `json:"galvo_shear_px"`
	ProjectionHeightPx int        `json:"projection_height_px"`
	ROI                optics.ROI `json:"roi"`

	ImagesPerBuffer       int    `json:"images_per_buffer"`
	BytesPerDataBuffer    int64  `json:"bytes_per_data_buffer"`
	PreviewShape          [4]int `json:"preview_shape"`
	BytesPerPreviewBuffer int64  `json:"bytes_per_preview_buffer"`
	TotalBytes            int64  `json:"total_bytes"`

	// Filled in after the waveform is synthesized.
	BufferSeconds    float64 `json:"buffer_seconds"`
	VolumesPerSecond float64 `json:"volumes_per_second"`
}

// frameGeometry returns the effective per-frame slice count and height: in
// projection mode the whole sweep lands on one taller frame.
func frameGeometry(s Settings, d Derived) (slices, heightPx int) {
	if s.ProjectionMode {
		return 1, d.ProjectionHeightPx
	}
	return d.SlicesPerVolume, s.HeightPx
}

// previewGeometry bundles the settings fields reconstruction needs.
func previewGeometry(s Settings, d Derived) recon.Geometry {
	return recon.Geometry{
		ProjectionMode:     s.ProjectionMode,
		ProjectionAngleDeg: s.ProjectionAngleDeg,
		SamplePxUm:         d.SamplePxUm,
		ScanStepSizePx:     d.ScanStepSizePx,
		LinePx:             s.PreviewLinePx,
		CropPx:             s.PreviewCropPx,
		TimestampMode:      s.TimestampMode,
	}
}

// legalize validates the settings and computes everything derived from them.
// The returned Settings carry the achieved geometry (snapped image size,
// integer scan step aspect ratio and range).  A ConfigurationError or
// ResourceExceededError return leaves nothing half-committed; the caller's
// prior state is untouched.
func legalize(s Settings, maxAllocatedBytes int64) (Settings, Derived, error) {
	var d Derived

	if err := validate(s); err != nil {
		return s, d, err
	}

	d.ZoomFocalLengthMM = optics.ZoomFocalLengthMM(s.SampleRI)
	d.SamplePxUm = optics.SamplePxUm(s.SampleRI)

	aspect := s.VoxelAspectRatio
	if s.ProjectionMode {
		aspect = 0 // forces a one pixel scan step
	}
	d.ScanStepSizePx, d.SlicesPerVolume = optics.CuboidVoxelScan(
		d.SamplePxUm, aspect, s.ScanRangeUm)
	d.ScanStepSizeUm = optics.ScanStepSizeUm(d.SamplePxUm, d.ScanStepSizePx)
	s.VoxelAspectRatio = optics.VoxelAspectRatio(d.ScanStepSizePx)
	s.ScanRangeUm = optics.ScanRangeUm(d.SamplePxUm, d.ScanStepSizePx, d.SlicesPerVolume)
	if s.ScanRangeUm > optics.MaxScanRangeUm {
		return s, d, ConfigurationError{Field: "scan_range_um",
			Reason: fmt.Sprintf("%.1f um exceeds the %g um optical limit",
				s.ScanRangeUm, optics.MaxScanRangeUm)}
	}
	d.GalvoShearPx = optics.GalvoShearPx(s.ScanRangeUm, d.SamplePxUm, s.ProjectionAngleDeg)

	s.HeightPx, s.WidthPx, d.ROI = optics.LegalizeImageSize(s.HeightPx, s.WidthPx)
	if s.ProjectionMode {
		h := s.HeightPx + d.GalvoShearPx
		if h > optics.SensorHeightPx {
			h = optics.SensorHeightPx
		}
		d.ProjectionHeightPx, s.WidthPx, d.ROI = optics.LegalizeImageSize(h, s.WidthPx)
	}

	slices, heightPx := frameGeometry(s, d)
	d.ImagesPerBuffer = s.VolumesPerBuffer * len(s.Channels) * slices
	d.BytesPerDataBuffer = 2 * int64(d.ImagesPerBuffer) * int64(heightPx) * int64(s.WidthPx)
	if d.BytesPerDataBuffer > s.MaxBytesPerBuffer {
		return s, d, ResourceExceededError{Which: "data buffer",
			Need: d.BytesPerDataBuffer, Limit: s.MaxBytesPerBuffer}
	}

	pt, pc, py, px := recon.PreviewShape(previewGeometry(s, d),
		s.VolumesPerBuffer, d.SlicesPerVolume, len(s.Channels), heightPx, s.WidthPx)
	d.PreviewShape = [4]int{pt, pc, py, px}
	d.BytesPerPreviewBuffer = 2 * int64(pt) * int64(pc) * int64(py) * int64(px)
	if d.BytesPerPreviewBuffer > s.MaxBytesPerBuffer {
		return s, d, ResourceExceededError{Which: "preview buffer",
			Need: d.BytesPerPreviewBuffer, Limit: s.MaxBytesPerBuffer}
	}

	d.TotalBytes = d.BytesPerDataBuffer*int64(s.MaxDataBuffers) +
		d.BytesPerPreviewBuffer*int64(s.MaxPreviewBuffers)
	if d.TotalBytes > maxAllocatedBytes {
		return s, d, ResourceExceededError{Which: "total allocation",
			Need: d.TotalBytes, Limit: maxAllocatedBytes}
	}
	return s, d, nil
}

func validate(s Settings) error {
	if len(s.Channels) == 0 {
		return ConfigurationError{"channels", "at least one channel required"}
	}
	for _, c := range s.Channels {
		if !waveform.IsIlluminationSource(c.Source) {
			return ConfigurationError{"channels",
				fmt.Sprintf("unknown illumination source %q", c.Source)}
		}
		if c.Power < 0 || c.Power > 100 {
			return ConfigurationError{"channels",
				fmt.Sprintf("%s power %.1f%% outside [0, 100]", c.Source, c.Power)}
		}
	}
	if _, ok := EmissionFilters[s.EmissionFilter]; !ok {
		return ConfigurationError{"emission_filter",
			fmt.Sprintf("unknown filter %q", s.EmissionFilter)}
	}
	if s.IlluminationTimeUs <= 0 {
		return ConfigurationError{"illumination_time_us", "must be positive"}
	}
	switch s.TimestampMode {
	case TimestampOff, TimestampBinary, TimestampBinaryASCII:
	default:
		return ConfigurationError{"timestamp_mode",
			fmt.Sprintf("unknown mode %q", s.TimestampMode)}
	}
	if s.SampleRI < 1.33 || s.SampleRI > 1.51 {
		return ConfigurationError{"sample_ri",
			fmt.Sprintf("%.3f outside [1.33, 1.51]", s.SampleRI)}
	}
	if s.ProjectionAngleDeg < 0 || s.ProjectionAngleDeg > 90 {
		return ConfigurationError{"projection_angle_deg",
			fmt.Sprintf("%.1f outside [0, 90]", s.ProjectionAngleDeg)}
	}
	if s.ScanRangeUm < 0 || s.ScanRangeUm > optics.MaxScanRangeUm {
		return ConfigurationError{"scan_range_um",
			fmt.Sprintf("%.1f outside [0, %g]", s.ScanRangeUm, optics.MaxScanRangeUm)}
	}
	if s.VolumesPerBuffer < 1 {
		return ConfigurationError{"volumes_per_buffer", "must be at least 1"}
	}
	if s.LSFocusAdjustV < -0.1 || s.LSFocusAdjustV > 0.1 {
		return ConfigurationError{"ls_focus_adjust_v",
			fmt.Sprintf("%.3f outside [-0.1, 0.1]", s.LSFocusAdjustV)}
	}
	if s.LSAngularDitherV < 0 || s.LSAngularDitherV > 1 {
		return ConfigurationError{"ls_angular_dither_v",
			fmt.Sprintf("%.3f outside [0, 1]", s.LSAngularDitherV)}
	}
	if s.CameraPreframes < 0 {
		return ConfigurationError{"camera_preframes", "must not be negative"}
	}
	if s.MaxBytesPerBuffer < 1 {
		return ConfigurationError{"max_bytes_per_buffer", "must be positive"}
	}
	if s.MaxDataBuffers < 1 || s.MaxPreviewBuffers < 1 {
		return ConfigurationError{"max_data_buffers", "buffer counts must be positive"}
	}
	if s.PreviewLinePx < 0 || s.PreviewCropPx < 0 {
		return ConfigurationError{"preview_line_px", "must not be negative"}
	}
	return nil
}
