package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestDefaultSegmentation(t *testing.T) {
	s := DefaultSegmentation()

	if s.VoxelResolution != 0.003 {
		t.Errorf("VoxelResolution = %v, want 0.003", s.VoxelResolution)
	}
	if s.SeedResolution != 0.05 {
		t.Errorf("SeedResolution = %v, want 0.05", s.SeedResolution)
	}
	if s.SpatialImportance != 0.4 {
		t.Errorf("SpatialImportance = %v, want 0.4", s.SpatialImportance)
	}
	if s.MinInliersPerPlane != 10 {
		t.Errorf("MinInliersPerPlane = %d, want 10", s.MinInliersPerPlane)
	}
	if s.MaxNumIterations != 25 {
		t.Errorf("MaxNumIterations = %d, want 25", s.MaxNumIterations)
	}
	if s.GCScale != 10000 {
		t.Errorf("GCScale = %d, want 10000", s.GCScale)
	}
	if !almostEqual(s.SmoothCost, 0.02*0.01) {
		t.Errorf("SmoothCost = %v, want %v", s.SmoothCost, 0.02*0.01)
	}
	if !almostEqual(s.LabelCost, 10*0.5*0.02) {
		t.Errorf("LabelCost = %v, want %v", s.LabelCost, 10*0.5*0.02)
	}
}

func TestDerivedCostsFollowOverrides(t *testing.T) {
	outlier := 0.5
	inliers := 40
	cfg := &SegmentationConfig{OutlierCost: &outlier, MinInliersPerPlane: &inliers}

	s := cfg.Resolve()
	if !almostEqual(s.SmoothCost, 0.005) {
		t.Errorf("SmoothCost = %v, want 0.005 (derived from overridden outlier_cost)", s.SmoothCost)
	}
	if !almostEqual(s.LabelCost, 10) {
		t.Errorf("LabelCost = %v, want 10 (derived from overridden values)", s.LabelCost)
	}
}

func TestExplicitCostsWin(t *testing.T) {
	smooth, label := 1.25, 2.5
	cfg := &SegmentationConfig{SmoothCost: &smooth, LabelCost: &label}

	s := cfg.Resolve()
	if s.SmoothCost != 1.25 || s.LabelCost != 2.5 {
		t.Errorf("explicit costs not honoured: smooth=%v label=%v", s.SmoothCost, s.LabelCost)
	}
}

func TestLoadSegmentationConfigJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg.json")
	body := `{
  "outlier_cost": 0.1,
  "seed_resolution": 0.02,
  "pointcloud_topic": "/camera/points",
  "mqtt": {"broker": "tcp://broker:1883"}
}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadSegmentationConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if got := cfg.GetPointcloudTopic(); got != "/camera/points" {
		t.Errorf("GetPointcloudTopic() = %q", got)
	}
	if got := cfg.GetMQTT().Broker; got != "tcp://broker:1883" {
		t.Errorf("GetMQTT().Broker = %q", got)
	}
	s := cfg.Resolve()
	if s.SeedResolution != 0.02 {
		t.Errorf("SeedResolution = %v, want 0.02", s.SeedResolution)
	}
	if !almostEqual(s.SmoothCost, 0.001) {
		t.Errorf("SmoothCost = %v, want 0.001", s.SmoothCost)
	}
}

func TestLoadSegmentationConfigYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg.yaml")
	body := "min_inliers_per_plane: 20\nuse_random_sampling: true\nsegmented_topic: out\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadSegmentationConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	s := cfg.Resolve()
	if s.MinInliersPerPlane != 20 || !s.UseRandomSampling {
		t.Errorf("unexpected resolved config: %+v", s)
	}
	if !almostEqual(s.LabelCost, 20*0.5*0.02) {
		t.Errorf("LabelCost = %v, want %v", s.LabelCost, 20*0.5*0.02)
	}
	if cfg.GetSegmentedTopic() != "out" {
		t.Errorf("GetSegmentedTopic() = %q, want out", cfg.GetSegmentedTopic())
	}
}

func TestLoadSegmentationConfigErrors(t *testing.T) {
	dir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantSub string
	}{
		{"missing file", filepath.Join(dir, "nope.json"), "stat"},
		{"bad extension", write("seg.toml", "x = 1"), "extension"},
		{"invalid json", write("bad.json", `{"outlier_cost": "x"`), "parse"},
		{"invalid value", write("neg.json", `{"seed_resolution": -1}`), "seed_resolution"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSegmentationConfig(tt.path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestTopicDefaults(t *testing.T) {
	empty := ""
	cfg := &SegmentationConfig{PointcloudTopic: &empty}
	if got := cfg.GetPointcloudTopic(); got != DefaultPointcloudTopic {
		t.Errorf("empty topic should fall back to default, got %q", got)
	}
	if got := cfg.GetSegmentedTopic(); got != DefaultSegmentedTopic {
		t.Errorf("GetSegmentedTopic() = %q, want %q", got, DefaultSegmentedTopic)
	}
}

func TestMustLoadDefaultConfigMatchesAccessors(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if got, want := cfg.Resolve(), DefaultSegmentation(); got != want {
		t.Errorf("defaults file drifted from accessors:\nfile: %+v\ncode: %+v", got, want)
	}
}
