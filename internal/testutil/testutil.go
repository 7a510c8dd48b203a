// Package testutil provides shared test helpers and point-cloud fixtures.
package testutil

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/cloudseg/internal/cloud"
	"github.com/banshee-data/cloudseg/internal/config"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewJSONRequest builds a test request with body encoded as JSON.
func NewJSONRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DecodeJSON decodes a recorder body into v.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response body: %v (body=%q)", err, rec.Body.String())
	}
}

// Header returns a fixed header with the given sequence number.
func Header(seq uint32) cloud.Header {
	return cloud.Header{
		Seq:     seq,
		Stamp:   time.Date(2024, 3, 1, 12, 0, 0, int(seq), time.UTC),
		FrameID: "camera_color_optical_frame",
	}
}

// LineCloud returns n finite points along the x axis.
func LineCloud(n int, seq uint32) cloud.Cloud {
	c := cloud.Cloud{Header: Header(seq), Points: make([]cloud.Point, n)}
	for i := range c.Points {
		c.Points[i] = cloud.Point{X: float32(i) * 0.01, Y: 0, Z: 1, R: 200, G: 100, B: 50}
	}
	return c
}

// NaNCloud returns n points whose coordinates are all NaN.
func NaNCloud(n int, seq uint32) cloud.Cloud {
	c := LineCloud(n, seq)
	nan := float32(math.NaN())
	for i := range c.Points {
		c.Points[i].X, c.Points[i].Y, c.Points[i].Z = nan, nan, nan
	}
	return c
}

// LabelingEngine is a segmentation engine for tests. Point i gets label
// (i % Modulo) when Modulo > 0, so every Modulo-th point stays unlabeled;
// otherwise every point gets label 1. Err, when set, is returned instead.
type LabelingEngine struct {
	mu     sync.Mutex
	cfg    config.Segmentation
	Modulo int
	Err    error
	calls  int
}

// NewLabelingEngine returns an engine with the default configuration.
func NewLabelingEngine(modulo int) *LabelingEngine {
	return &LabelingEngine{cfg: config.DefaultSegmentation(), Modulo: modulo}
}

func (e *LabelingEngine) SetConfig(cfg config.Segmentation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	return nil
}

func (e *LabelingEngine) GetConfig() config.Segmentation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *LabelingEngine) Segment(in cloud.Cloud) (cloud.Cloud, error) {
	e.mu.Lock()
	e.calls++
	err := e.Err
	e.mu.Unlock()
	if err != nil {
		return cloud.Cloud{}, err
	}
	out := in.Clone()
	for i := range out.Points {
		if e.Modulo > 0 {
			out.Points[i].Label = uint32(i % e.Modulo)
		} else {
			out.Points[i].Label = 1
		}
	}
	return out, nil
}

// Calls returns how many times Segment ran.
func (e *LabelingEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// RecordingPublisher stores every published cloud.
type RecordingPublisher struct {
	mu    sync.Mutex
	items []cloud.Cloud
}

func (p *RecordingPublisher) Publish(c cloud.Cloud) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, c.Clone())
}

// Published returns a copy of everything published so far.
func (p *RecordingPublisher) Published() []cloud.Cloud {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]cloud.Cloud(nil), p.items...)
}
