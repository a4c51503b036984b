package render

import (
	"bufio"
	"compress/lzw"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"github.com/couchcryptid/covid-map-etl/internal/filewriter"
)

// OutputName is the file name of an animation with n frames.
func OutputName(n int) string {
	return fmt.Sprintf("%d_days_of_covid.gif", n)
}

// Quantize maps img onto p using the nearest palette entry per pixel.
// Lookups are memoised per colour since frames hold few distinct colours.
func Quantize(img image.Image, p color.Palette) *image.Paletted {
	b := img.Bounds()
	out := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), p)
	memo := make(map[uint32]uint8)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := out.Pix[(y-b.Min.Y)*out.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			key := (r>>8)<<24 | (g>>8)<<16 | (bl>>8)<<8 | a>>8
			idx, ok := memo[key]
			if !ok {
				idx = uint8(p.Index(color.RGBA64{R: uint16(r), G: uint16(g), B: uint16(bl), A: uint16(a)}))
				memo[key] = idx
			}
			row[x-b.Min.X] = idx
		}
	}
	return out
}

// GIFSink streams frames into an animated GIF. Each frame is quantized and
// LZW-compressed as it arrives, so memory use does not grow with the number
// of frames. The file is written to a temp name and renamed on Close to
// OutputName(frames).
type GIFSink struct {
	dir     string
	delay   uint16 // hundredths of a second
	palette color.Palette

	fw     *filewriter.FileWriter
	w      *bufio.Writer
	size   image.Point
	frames int
}

// NewGIFSink creates a sink writing into dir at frameRate frames per second.
func NewGIFSink(dir string, frameRate int) (*GIFSink, error) {
	if frameRate <= 0 || frameRate > 100 {
		return nil, fmt.Errorf("frame rate %d out of range", frameRate)
	}
	fw, err := filewriter.New(filepath.Join(dir, "days_of_covid.gif"))
	if err != nil {
		return nil, err
	}
	return &GIFSink{
		dir:     dir,
		delay:   uint16(100 / frameRate),
		palette: FramePalette,
		fw:      fw,
		w:       bufio.NewWriter(fw),
	}, nil
}

// Frames returns the number of frames written so far.
func (s *GIFSink) Frames() int { return s.frames }

// Path returns where the animation is written on Close.
func (s *GIFSink) Path() string {
	return filepath.Join(s.dir, OutputName(s.frames))
}

// WriteFrame appends img. All frames must share the first frame's size.
func (s *GIFSink) WriteFrame(_ int, _ domain.Date, img image.Image) error {
	pm := Quantize(img, s.palette)
	size := pm.Bounds().Size()
	if s.frames == 0 {
		s.size = size
		if err := s.writeHeader(); err != nil {
			return err
		}
	} else if size != s.size {
		return fmt.Errorf("frame %d is %v, want %v", s.frames, size, s.size)
	}
	if err := s.writeFrame(pm); err != nil {
		return err
	}
	s.frames++
	return nil
}

// Close finishes the animation and moves it into place.
func (s *GIFSink) Close() error {
	if s.frames == 0 {
		s.fw.Abort()
		return errors.New("gif: no frames written")
	}
	if err := s.w.WriteByte(0x3b); err != nil { // trailer
		s.fw.Abort()
		return err
	}
	if err := s.w.Flush(); err != nil {
		s.fw.Abort()
		return err
	}
	s.fw.SetPath(s.Path())
	return s.fw.Close()
}

// Abort discards the partial animation.
func (s *GIFSink) Abort() { s.fw.Abort() }

func (s *GIFSink) writeHeader() error {
	if s.size.X > 0xffff || s.size.Y > 0xffff {
		return fmt.Errorf("frame size %v too large for gif", s.size)
	}
	var hdr [13]byte
	copy(hdr[:6], "GIF89a")
	binary.LittleEndian.PutUint16(hdr[6:8], uint16(s.size.X))
	binary.LittleEndian.PutUint16(hdr[8:10], uint16(s.size.Y))
	hdr[10] = 0x80 | 0x70 | 0x07 // global table, 8-bit colour resolution, 256 entries
	s.w.Write(hdr[:])

	var table [3 * 256]byte
	for i, c := range s.palette {
		r, g, b, _ := c.RGBA()
		table[3*i], table[3*i+1], table[3*i+2] = uint8(r>>8), uint8(g>>8), uint8(b>>8)
	}
	s.w.Write(table[:])

	// NETSCAPE2.0 application extension with loop count 0 (forever).
	s.w.Write([]byte{0x21, 0xff, 0x0b})
	s.w.WriteString("NETSCAPE2.0")
	_, err := s.w.Write([]byte{0x03, 0x01, 0x00, 0x00, 0x00})
	return err
}

func (s *GIFSink) writeFrame(pm *image.Paletted) error {
	// Graphic control extension carrying the frame delay.
	gce := []byte{0x21, 0xf9, 0x04, 0x00, 0, 0, 0x00, 0x00}
	binary.LittleEndian.PutUint16(gce[4:6], s.delay)
	s.w.Write(gce)

	var desc [10]byte
	desc[0] = 0x2c
	binary.LittleEndian.PutUint16(desc[5:7], uint16(s.size.X))
	binary.LittleEndian.PutUint16(desc[7:9], uint16(s.size.Y))
	s.w.Write(desc[:])

	const litWidth = 8
	s.w.WriteByte(litWidth)
	bw := &blockWriter{w: s.w}
	lw := lzw.NewWriter(bw, lzw.LSB, litWidth)
	if _, err := lw.Write(pm.Pix); err != nil {
		return fmt.Errorf("compress frame %d: %w", s.frames, err)
	}
	if err := lw.Close(); err != nil {
		return fmt.Errorf("compress frame %d: %w", s.frames, err)
	}
	return bw.close()
}

// blockWriter splits a byte stream into GIF data sub-blocks of at most 255 bytes.
type blockWriter struct {
	w   *bufio.Writer
	buf [256]byte
	n   int
}

func (b *blockWriter) Write(p []byte) (int, error) {
	for _, c := range p {
		b.n++
		b.buf[b.n] = c
		if b.n == 255 {
			if err := b.flush(); err != nil {
				return 0, err
			}
		}
	}
	return len(p), nil
}

func (b *blockWriter) flush() error {
	if b.n == 0 {
		return nil
	}
	b.buf[0] = byte(b.n)
	_, err := b.w.Write(b.buf[:b.n+1])
	b.n = 0
	return err
}

func (b *blockWriter) close() error {
	if err := b.flush(); err != nil {
		return err
	}
	return b.w.WriteByte(0x00)
}
