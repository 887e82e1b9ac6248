package recorder

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"
)

// Player replays a .mrr file's frames in order, re-injecting them into a
// playback session's decode pipeline at a configurable speed, with
// optional looping. Frames are loaded into memory at Open time so Seek can
// locate the nearest frame by timestamp without tracking a separate
// chunk/index file.
type Player struct {
	closer io.Closer
	header Header
	frames []Frame
}

// Open reads a .mrr file's header and every frame.
func Open(path string) (*Player, error) {
	rc, err := openRead(path)
	if err != nil {
		return nil, err
	}

	header, err := readHeader(rc.br)
	if err != nil {
		rc.Close()
		return nil, err
	}

	var frames []Frame
	for {
		f, err := readFrame(rc.br)
		if err != nil {
			if err == io.EOF {
				break
			}
			rc.Close()
			return nil, err
		}
		frames = append(frames, f)
	}

	return &Player{closer: rc, header: header, frames: frames}, nil
}

// Header returns the recording's header.
func (p *Player) Header() Header { return p.header }

// FrameCount returns the total number of frames in the recording.
func (p *Player) FrameCount() int { return len(p.frames) }

// Close releases the underlying file.
func (p *Player) Close() error { return p.closer.Close() }

// seekIndex returns the index of the first frame at or after offsetMs.
func (p *Player) seekIndex(offsetMs uint64) int {
	return sort.Search(len(p.frames), func(i int) bool {
		return p.frames[i].OffsetMs >= offsetMs
	})
}

// DataSink and ReportSink feed replayed payloads back into a session's
// decode pipeline (session.Session.FeedData / FeedReport satisfy these).
type DataSink func(payload []byte)
type ReportSink func(payload []byte)

// Run replays frames from startMs onward at the given speed multiplier
// (clamped to 0.25x-4x), invoking dataSink/reportSink in frame
// order with inter-frame delays scaled by 1/speed. If loop is true,
// playback restarts from the beginning after the last frame instead of
// returning. Run blocks until ctx is cancelled or (non-looping) the
// recording is exhausted.
func (p *Player) Run(ctx context.Context, startMs uint64, speed float64, loop bool, dataSink DataSink, reportSink ReportSink) error {
	if speed <= 0 {
		return fmt.Errorf("recorder: invalid playback speed %v", speed)
	}
	if speed < 0.25 {
		speed = 0.25
	} else if speed > 4 {
		speed = 4
	}
	if len(p.frames) == 0 {
		return nil
	}

	idx := p.seekIndex(startMs)
	var lastOffset uint64
	if idx > 0 {
		lastOffset = p.frames[idx-1].OffsetMs
	}

	for {
		for ; idx < len(p.frames); idx++ {
			f := p.frames[idx]
			wait := time.Duration(float64(f.OffsetMs-lastOffset)/speed) * time.Millisecond
			lastOffset = f.OffsetMs

			if wait > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
				}
			} else {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}

			switch f.Source {
			case SourceData:
				if dataSink != nil {
					dataSink(f.Payload)
				}
			case SourceReport:
				if reportSink != nil {
					reportSink(f.Payload)
				}
			}
		}

		if !loop {
			return nil
		}
		idx = 0
		lastOffset = 0
	}
}
