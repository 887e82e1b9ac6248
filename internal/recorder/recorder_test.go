package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mayara-project/mayara/internal/model"
)

func testEndpoints() model.Endpoints {
	return model.Endpoints{DataAddr: "236.6.7.8:6678", ReportAddr: "236.6.7.9:6679", SendAddr: "236.6.7.10:6680"}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.mrr")

	r, err := Create(path, model.BrandNavico, "radar-1", testEndpoints())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.WriteFrame(SourceData, []byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("WriteFrame data: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := r.WriteFrame(SourceReport, []byte{0xAA}); err != nil {
		t.Fatalf("WriteFrame report: %v", err)
	}
	summary, err := r.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if summary.Frames != 2 {
		t.Errorf("Frames = %d, want 2", summary.Frames)
	}

	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	if p.Header().Brand != model.BrandNavico {
		t.Errorf("Brand = %v, want navico", p.Header().Brand)
	}
	if p.Header().RadarID != "radar-1" {
		t.Errorf("RadarID = %q, want radar-1", p.Header().RadarID)
	}
	if p.Header().Endpoints.DataAddr != "236.6.7.8:6678" {
		t.Errorf("DataAddr = %q", p.Header().Endpoints.DataAddr)
	}
	if p.FrameCount() != 2 {
		t.Fatalf("FrameCount = %d, want 2", p.FrameCount())
	}
	if p.frames[0].Source != SourceData || string(p.frames[0].Payload) != "\x01\x02\x03" {
		t.Errorf("frame 0 = %+v", p.frames[0])
	}
	if p.frames[1].Source != SourceReport {
		t.Errorf("frame 1 source = %d, want SourceReport", p.frames[1].Source)
	}
}

func TestGzipRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.mrr.gz")

	r, err := Create(path, model.BrandFuruno, "radar-2", testEndpoints())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.WriteFrame(SourceData, []byte("hello")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()
	if p.FrameCount() != 1 || string(p.frames[0].Payload) != "hello" {
		t.Errorf("frames = %+v", p.frames)
	}
}

func TestPlayerRunInvokesSinksInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.mrr")
	r, err := Create(path, model.BrandNavico, "radar-1", testEndpoints())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	r.WriteFrame(SourceData, []byte{0x01})
	r.WriteFrame(SourceReport, []byte{0x02})
	if _, err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	var got []string
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = p.Run(ctx, 0, 100, false,
		func(payload []byte) { got = append(got, "data") },
		func(payload []byte) { got = append(got, "report") },
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 2 || got[0] != "data" || got[1] != "report" {
		t.Errorf("got %v, want [data report]", got)
	}
}

func TestManagerRejectsConcurrentRecordings(t *testing.T) {
	m := NewManager()
	path1 := filepath.Join(t.TempDir(), "a.mrr")
	path2 := filepath.Join(t.TempDir(), "b.mrr")

	if _, err := m.Start(path1, model.BrandNavico, "radar-1", testEndpoints()); err != nil {
		t.Fatalf("Start 1: %v", err)
	}
	if _, err := m.Start(path2, model.BrandNavico, "radar-2", testEndpoints()); err == nil {
		t.Fatal("expected the second Start to fail while a recording is active")
	}
	if _, err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := m.Start(path2, model.BrandNavico, "radar-2", testEndpoints()); err != nil {
		t.Fatalf("Start after Stop: %v", err)
	}
	m.Stop()
}
