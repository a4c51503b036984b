package render

import (
	"fmt"
	"image"
	"image/png"
	"path/filepath"

	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"github.com/couchcryptid/covid-map-etl/internal/filewriter"
)

// PNGSink writes every frame as its own PNG file.
type PNGSink struct {
	dir     string
	encoder png.Encoder
}

// NewPNGSink writes frames into dir, creating it on the first frame.
func NewPNGSink(dir string) *PNGSink {
	return &PNGSink{dir: dir, encoder: png.Encoder{CompressionLevel: png.BestSpeed}}
}

// FrameName is the file name of the index-th (0-based) frame.
func FrameName(index int, date domain.Date) string {
	return fmt.Sprintf("frame_%04d_%s.png", index+1, date)
}

// WriteFrame encodes img to FrameName(index, date) in the sink's directory.
func (s *PNGSink) WriteFrame(index int, date domain.Date, img image.Image) error {
	fw, err := filewriter.New(filepath.Join(s.dir, FrameName(index, date)))
	if err != nil {
		return err
	}
	if err := s.encoder.Encode(fw, img); err != nil {
		fw.Abort()
		return fmt.Errorf("encode %s: %w", fw.Path(), err)
	}
	return fw.Close()
}

// Close is a no-op; each frame file is complete once WriteFrame returns.
func (s *PNGSink) Close() error { return nil }

// Abort leaves already written frames in place.
func (s *PNGSink) Abort() {}
