package media

import (
	"fmt"
	"image"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/cjeanneret/SnapGo/internal/capture"
	"github.com/cjeanneret/SnapGo/internal/debug"
)

// Metadata describes a captured photo. EXIF fields are nil when the file
// carries no EXIF block (webcam and mock frames).
type Metadata struct {
	Ref          string     `json:"ref"`
	Format       string     `json:"format,omitempty"`
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	SizeBytes    int64      `json:"size_bytes"`
	CameraMake   *string    `json:"camera_make,omitempty"`
	CameraModel  *string    `json:"camera_model,omitempty"`
	Aperture     *float64   `json:"aperture,omitempty"`
	ShutterSpeed *string    `json:"shutter_speed,omitempty"`
	ISO          *int       `json:"iso,omitempty"`
	FocalLength  *float64   `json:"focal_length,omitempty"`
	TakenAt      *time.Time `json:"taken_at,omitempty"`
}

// ReadMetadata reads dimensions and EXIF data of the photo behind ref.
func ReadMetadata(ref string) (*Metadata, error) {
	path, err := capture.RefPath(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNothingToRender, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNothingToRender, err)
	}
	defer f.Close()

	meta := &Metadata{Ref: ref}
	if info, err := f.Stat(); err == nil {
		meta.SizeBytes = info.Size()
	}

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrNothingToRender, path, err)
	}
	meta.Format, meta.Width, meta.Height = format, cfg.Width, cfg.Height

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("metadata: seek %s: %w", path, err)
	}
	x, err := exif.Decode(f)
	if err != nil {
		debug.Trace("metadata: no EXIF in %s: %v", path, err)
		return meta, nil
	}

	meta.CameraMake = exifString(x, exif.Make)
	meta.CameraModel = exifString(x, exif.Model)
	meta.Aperture = exifRational(x, exif.FNumber)
	meta.FocalLength = exifRational(x, exif.FocalLength)
	meta.ShutterSpeed = exposure(x)
	meta.ISO = exifInt(x, exif.ISOSpeedRatings)
	if t, err := x.DateTime(); err == nil {
		meta.TakenAt = &t
	}
	return meta, nil
}

func exifRational(x *exif.Exif, name exif.FieldName) *float64 {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		if v, err := tag.Int(0); err == nil {
			f := float64(v)
			return &f
		}
		return nil
	}
	v := float64(num) / float64(den)
	return &v
}

func exifInt(x *exif.Exif, name exif.FieldName) *int {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}
	v, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &v
}

func exifString(x *exif.Exif, name exif.FieldName) *string {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}
	v, err := tag.StringVal()
	if err != nil {
		v = tag.String()
	}
	v = strings.TrimSpace(strings.TrimRight(v, "\x00"))
	if v == "" {
		return nil
	}
	return &v
}

// exposure formats ExposureTime as 1/N when possible.
func exposure(x *exif.Exif) *string {
	tag, err := x.Get(exif.ExposureTime)
	if err != nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return nil
	}
	var s string
	switch v := float64(num) / float64(den); {
	case num == 1 && den > 1:
		s = fmt.Sprintf("1/%d", den)
	case v >= 1:
		s = fmt.Sprintf("%.1fs", v)
	default:
		s = fmt.Sprintf("%.4fs", v)
	}
	return &s
}
