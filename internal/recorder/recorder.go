// Package recorder implements the .mrr/.mrr.gz capture format: a
// length-prefixed sequence of timestamped raw payloads, attached to a
// session's data and report sockets before decoding, plus a Player that
// re-injects those payloads into a playback session's decode pipeline. The
// format is a Recorder/Player pair over length-prefixed binary records with
// a fixed-field header up front, a single-file, non-chunked layout; gzip
// wrapping uses github.com/klauspost/compress/gzip.
package recorder

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/mayara-project/mayara/internal/model"
)

// Magic identifies a .mrr file.
const Magic = "MRR1"

// Source tags distinguish a record's origin socket.
const (
	SourceData   uint8 = 0
	SourceReport uint8 = 1
)

var vendorTags = map[model.Brand]uint8{
	model.BrandNavico:    1,
	model.BrandFuruno:    2,
	model.BrandRaymarine: 3,
	model.BrandGarmin:    4,
}

var vendorBrands = map[uint8]model.Brand{
	1: model.BrandNavico,
	2: model.BrandFuruno,
	3: model.BrandRaymarine,
	4: model.BrandGarmin,
}

// Header is the fixed preamble of a .mrr file: magic, vendor tag, radar
// id, original addressing, and a creation timestamp.
type Header struct {
	Brand     model.Brand
	RadarID   string
	Endpoints model.Endpoints
	CreatedAt time.Time
}

// Summary describes a finished recording: on stop, the file is finalised
// and indexed with duration and frame count.
type Summary struct {
	Path     string
	Frames   uint64
	Duration time.Duration
}

// Recorder writes a single .mrr (or .mrr.gz, chosen by the path's
// extension) capture. A Recorder is single-use: once Close returns, no
// further frames may be written.
type Recorder struct {
	mu     sync.Mutex
	raw    *os.File
	gz     *gzip.Writer
	w      io.Writer
	start  time.Time
	path   string
	frames uint64
	closed bool
}

// Create opens path and writes the .mrr header for one radar.
func Create(path string, brand model.Brand, radarID string, endpoints model.Endpoints) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: create %s: %w", path, err)
	}

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	r := &Recorder{raw: f, gz: gz, w: w, start: time.Now(), path: path}
	if err := r.writeHeader(brand, radarID, endpoints); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Recorder) writeHeader(brand model.Brand, radarID string, endpoints model.Endpoints) error {
	if _, err := io.WriteString(r.w, Magic); err != nil {
		return fmt.Errorf("recorder: write magic: %w", err)
	}
	tag, ok := vendorTags[brand]
	if !ok {
		return fmt.Errorf("recorder: unknown vendor brand %q", brand)
	}
	if err := writeUint8(r.w, tag); err != nil {
		return err
	}
	for _, s := range []string{radarID, endpoints.DataAddr, endpoints.ReportAddr, endpoints.SendAddr} {
		if err := writeString(r.w, s); err != nil {
			return err
		}
	}
	return writeUint64(r.w, uint64(r.start.UnixMilli()))
}

// WriteFrame appends one timestamped record. source must be SourceData or
// SourceReport. Safe for concurrent use by a session's data and report
// tasks.
func (r *Recorder) WriteFrame(source uint8, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("recorder: recording already closed")
	}
	if len(payload) > 0xFFFF {
		return fmt.Errorf("recorder: frame too large: %d bytes", len(payload))
	}

	offsetMs := uint64(time.Since(r.start).Milliseconds())
	if err := writeUint64(r.w, offsetMs); err != nil {
		return err
	}
	if err := writeUint8(r.w, source); err != nil {
		return err
	}
	if err := writeUint16(r.w, uint16(len(payload))); err != nil {
		return err
	}
	if _, err := r.w.Write(payload); err != nil {
		return fmt.Errorf("recorder: write payload: %w", err)
	}
	r.frames++
	return nil
}

// Frames returns the number of records written so far.
func (r *Recorder) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Path returns the file path this recording is writing to.
func (r *Recorder) Path() string { return r.path }

// Close finalises the recording: flushes and closes any gzip wrapper, then
// the underlying file, and returns a Summary.
func (r *Recorder) Close() (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Summary{}, fmt.Errorf("recorder: already closed")
	}
	r.closed = true

	var err error
	if r.gz != nil {
		err = r.gz.Close()
	}
	if cerr := r.raw.Close(); err == nil {
		err = cerr
	}
	return Summary{Path: r.path, Frames: r.frames, Duration: time.Since(r.start)}, err
}

func writeUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func writeUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeString(w io.Writer, s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("recorder: string too long: %d bytes", len(s))
	}
	if err := writeUint16(w, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func readUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func readString(r io.Reader) (string, error) {
	n, err := readUint16(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// bufReadCloser pairs a *bufio.Reader with the underlying closer(s) it was
// built from (the raw file, and an optional gzip reader).
type bufReadCloser struct {
	br  *bufio.Reader
	gz  *gzip.Reader
	raw *os.File
}

func (b *bufReadCloser) Close() error {
	var err error
	if b.gz != nil {
		err = b.gz.Close()
	}
	if cerr := b.raw.Close(); err == nil {
		err = cerr
	}
	return err
}

func openRead(path string) (*bufReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}

	var r io.Reader = f
	var gz *gzip.Reader
	if strings.HasSuffix(path, ".gz") {
		gz, err = gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("recorder: open gzip %s: %w", path, err)
		}
		r = gz
	}
	return &bufReadCloser{br: bufio.NewReader(r), gz: gz, raw: f}, nil
}

func readHeader(br *bufio.Reader) (Header, error) {
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return Header{}, fmt.Errorf("recorder: read magic: %w", err)
	}
	if string(magic) != Magic {
		return Header{}, fmt.Errorf("recorder: bad magic %q, want %q", magic, Magic)
	}
	tag, err := readUint8(br)
	if err != nil {
		return Header{}, fmt.Errorf("recorder: read vendor tag: %w", err)
	}
	brand, ok := vendorBrands[tag]
	if !ok {
		return Header{}, fmt.Errorf("recorder: unknown vendor tag %d", tag)
	}
	radarID, err := readString(br)
	if err != nil {
		return Header{}, fmt.Errorf("recorder: read radar id: %w", err)
	}
	dataAddr, err := readString(br)
	if err != nil {
		return Header{}, err
	}
	reportAddr, err := readString(br)
	if err != nil {
		return Header{}, err
	}
	sendAddr, err := readString(br)
	if err != nil {
		return Header{}, err
	}
	createdMs, err := readUint64(br)
	if err != nil {
		return Header{}, fmt.Errorf("recorder: read created timestamp: %w", err)
	}

	return Header{
		Brand:   brand,
		RadarID: radarID,
		Endpoints: model.Endpoints{
			DataAddr:   dataAddr,
			ReportAddr: reportAddr,
			SendAddr:   sendAddr,
		},
		CreatedAt: time.UnixMilli(int64(createdMs)),
	}, nil
}

// Frame is one decoded record from a .mrr file.
type Frame struct {
	OffsetMs uint64
	Source   uint8
	Payload  []byte
}

func readFrame(br *bufio.Reader) (Frame, error) {
	offsetMs, err := readUint64(br)
	if err != nil {
		return Frame{}, err
	}
	source, err := readUint8(br)
	if err != nil {
		return Frame{}, fmt.Errorf("recorder: read source tag: %w", err)
	}
	length, err := readUint16(br)
	if err != nil {
		return Frame{}, fmt.Errorf("recorder: read frame length: %w", err)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(br, payload); err != nil {
		return Frame{}, fmt.Errorf("recorder: read frame payload: %w", err)
	}
	return Frame{OffsetMs: offsetMs, Source: source, Payload: payload}, nil
}
