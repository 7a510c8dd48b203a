package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical segmentation defaults file.
const DefaultConfigPath = "config/segmentation.defaults.json"

// Topic defaults used when the configuration leaves them unset.
const (
	DefaultPointcloudTopic = "/realsense/points_aligned"
	DefaultSegmentedTopic  = "segmented_pointcloud"
	DefaultMQTTClientID    = "segmentation_node"
)

// SegmentationConfig is the on-disk parameter set for the node. Every field
// is optional: the Get* accessors supply defaults for omitted values, so a
// partial file only overrides what it names.
type SegmentationConfig struct {
	// Supervoxel params
	VoxelResolution   *float64 `json:"voxel_resolution,omitempty" yaml:"voxel_resolution,omitempty"`
	SeedResolution    *float64 `json:"seed_resolution,omitempty" yaml:"seed_resolution,omitempty"`
	ColorImportance   *float64 `json:"color_importance,omitempty" yaml:"color_importance,omitempty"`
	SpatialImportance *float64 `json:"spatial_importance,omitempty" yaml:"spatial_importance,omitempty"`
	NormalImportance  *float64 `json:"normal_importance,omitempty" yaml:"normal_importance,omitempty"`

	UseSingleCamTransform   *bool `json:"use_single_cam_transform,omitempty" yaml:"use_single_cam_transform,omitempty"`
	UseSupervoxelRefinement *bool `json:"use_supervoxel_refinement,omitempty" yaml:"use_supervoxel_refinement,omitempty"`
	UseRandomSampling       *bool `json:"use_random_sampling,omitempty" yaml:"use_random_sampling,omitempty"`

	// Labeling costs. SmoothCost and LabelCost derive from OutlierCost and
	// MinInliersPerPlane when omitted.
	OutlierCost        *float64 `json:"outlier_cost,omitempty" yaml:"outlier_cost,omitempty"`
	SmoothCost         *float64 `json:"smooth_cost,omitempty" yaml:"smooth_cost,omitempty"`
	MinInliersPerPlane *int     `json:"min_inliers_per_plane,omitempty" yaml:"min_inliers_per_plane,omitempty"`
	LabelCost          *float64 `json:"label_cost,omitempty" yaml:"label_cost,omitempty"`

	MaxNumIterations *int     `json:"max_num_iterations,omitempty" yaml:"max_num_iterations,omitempty"`
	MaxCurvature     *float64 `json:"max_curvature,omitempty" yaml:"max_curvature,omitempty"`
	GCScale          *int     `json:"gc_scale,omitempty" yaml:"gc_scale,omitempty"`

	// Transport params
	PointcloudTopic *string     `json:"pointcloud_topic,omitempty" yaml:"pointcloud_topic,omitempty"`
	SegmentedTopic  *string     `json:"segmented_topic,omitempty" yaml:"segmented_topic,omitempty"`
	MQTT            *MQTTConfig `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
}

// MQTTConfig holds broker connection settings. Environment variables take
// precedence (see mqttbridge).
type MQTTConfig struct {
	Broker   string `json:"broker,omitempty" yaml:"broker,omitempty"`
	ClientID string `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// Segmentation is the resolved, immutable engine configuration. Build it with
// SegmentationConfig.Resolve; derived costs are already applied.
type Segmentation struct {
	VoxelResolution   float64 `json:"voxel_resolution"`
	SeedResolution    float64 `json:"seed_resolution"`
	ColorImportance   float64 `json:"color_importance"`
	SpatialImportance float64 `json:"spatial_importance"`
	NormalImportance  float64 `json:"normal_importance"`

	UseSingleCamTransform   bool `json:"use_single_cam_transform"`
	UseSupervoxelRefinement bool `json:"use_supervoxel_refinement"`
	UseRandomSampling       bool `json:"use_random_sampling"`

	OutlierCost        float64 `json:"outlier_cost"`
	SmoothCost         float64 `json:"smooth_cost"`
	MinInliersPerPlane int     `json:"min_inliers_per_plane"`
	LabelCost          float64 `json:"label_cost"`

	MaxNumIterations int     `json:"max_num_iterations"`
	MaxCurvature     float64 `json:"max_curvature"`
	GCScale          int     `json:"gc_scale"`
}

// EmptySegmentationConfig returns a config with every field unset.
func EmptySegmentationConfig() *SegmentationConfig {
	return &SegmentationConfig{}
}

// LoadSegmentationConfig reads a config file. The format follows the
// extension: .json, or .yaml/.yml. Omitted fields keep their defaults.
func LoadSegmentationConfig(path string) (*SegmentationConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySegmentationConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the set values are usable. Unset values are always
// valid because their defaults are.
func (c *SegmentationConfig) Validate() error {
	if c.VoxelResolution != nil && *c.VoxelResolution <= 0 {
		return fmt.Errorf("voxel_resolution must be positive, got %f", *c.VoxelResolution)
	}
	if c.SeedResolution != nil && *c.SeedResolution <= 0 {
		return fmt.Errorf("seed_resolution must be positive, got %f", *c.SeedResolution)
	}
	if c.OutlierCost != nil && *c.OutlierCost < 0 {
		return fmt.Errorf("outlier_cost must be non-negative, got %f", *c.OutlierCost)
	}
	if c.MinInliersPerPlane != nil && *c.MinInliersPerPlane < 0 {
		return fmt.Errorf("min_inliers_per_plane must be non-negative, got %d", *c.MinInliersPerPlane)
	}
	if c.MaxNumIterations != nil && *c.MaxNumIterations < 0 {
		return fmt.Errorf("max_num_iterations must be non-negative, got %d", *c.MaxNumIterations)
	}
	if c.MaxCurvature != nil && *c.MaxCurvature < 0 {
		return fmt.Errorf("max_curvature must be non-negative, got %f", *c.MaxCurvature)
	}
	if c.GCScale != nil && *c.GCScale <= 0 {
		return fmt.Errorf("gc_scale must be positive, got %d", *c.GCScale)
	}
	return nil
}

// Resolve applies defaults and derivations and returns the immutable engine
// configuration.
func (c *SegmentationConfig) Resolve() Segmentation {
	return Segmentation{
		VoxelResolution:         c.GetVoxelResolution(),
		SeedResolution:          c.GetSeedResolution(),
		ColorImportance:         c.GetColorImportance(),
		SpatialImportance:       c.GetSpatialImportance(),
		NormalImportance:        c.GetNormalImportance(),
		UseSingleCamTransform:   c.GetUseSingleCamTransform(),
		UseSupervoxelRefinement: c.GetUseSupervoxelRefinement(),
		UseRandomSampling:       c.GetUseRandomSampling(),
		OutlierCost:             c.GetOutlierCost(),
		SmoothCost:              c.GetSmoothCost(),
		MinInliersPerPlane:      c.GetMinInliersPerPlane(),
		LabelCost:               c.GetLabelCost(),
		MaxNumIterations:        c.GetMaxNumIterations(),
		MaxCurvature:            c.GetMaxCurvature(),
		GCScale:                 c.GetGCScale(),
	}
}

// DefaultSegmentation returns the resolved configuration with every default.
func DefaultSegmentation() Segmentation {
	return EmptySegmentationConfig().Resolve()
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *SegmentationConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadSegmentationConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}
