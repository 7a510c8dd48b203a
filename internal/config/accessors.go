package config

// GetVoxelResolution returns the voxel_resolution value or the default.
func (c *SegmentationConfig) GetVoxelResolution() float64 {
	if c.VoxelResolution == nil {
		return 0.003
	}
	return *c.VoxelResolution
}

// GetSeedResolution returns the seed_resolution value or the default.
func (c *SegmentationConfig) GetSeedResolution() float64 {
	if c.SeedResolution == nil {
		return 0.05
	}
	return *c.SeedResolution
}

// GetColorImportance returns the color_importance value or the default.
func (c *SegmentationConfig) GetColorImportance() float64 {
	if c.ColorImportance == nil {
		return 1.0
	}
	return *c.ColorImportance
}

// GetSpatialImportance returns the spatial_importance value or the default.
func (c *SegmentationConfig) GetSpatialImportance() float64 {
	if c.SpatialImportance == nil {
		return 0.4
	}
	return *c.SpatialImportance
}

// GetNormalImportance returns the normal_importance value or the default.
func (c *SegmentationConfig) GetNormalImportance() float64 {
	if c.NormalImportance == nil {
		return 1.0
	}
	return *c.NormalImportance
}

// GetUseSingleCamTransform returns the use_single_cam_transform value or the default.
func (c *SegmentationConfig) GetUseSingleCamTransform() bool {
	if c.UseSingleCamTransform == nil {
		return false
	}
	return *c.UseSingleCamTransform
}

// GetUseSupervoxelRefinement returns the use_supervoxel_refinement value or the default.
func (c *SegmentationConfig) GetUseSupervoxelRefinement() bool {
	if c.UseSupervoxelRefinement == nil {
		return false
	}
	return *c.UseSupervoxelRefinement
}

// GetUseRandomSampling returns the use_random_sampling value or the default.
func (c *SegmentationConfig) GetUseRandomSampling() bool {
	if c.UseRandomSampling == nil {
		return false
	}
	return *c.UseRandomSampling
}

// GetOutlierCost returns the outlier_cost value or the default.
func (c *SegmentationConfig) GetOutlierCost() float64 {
	if c.OutlierCost == nil {
		return 0.02
	}
	return *c.OutlierCost
}

// GetSmoothCost returns smooth_cost, or outlier_cost * 0.01 using the
// effective outlier_cost when unset.
func (c *SegmentationConfig) GetSmoothCost() float64 {
	if c.SmoothCost == nil {
		return c.GetOutlierCost() * 0.01
	}
	return *c.SmoothCost
}

// GetMinInliersPerPlane returns the min_inliers_per_plane value or the default.
func (c *SegmentationConfig) GetMinInliersPerPlane() int {
	if c.MinInliersPerPlane == nil {
		return 10
	}
	return *c.MinInliersPerPlane
}

// GetLabelCost returns label_cost, or min_inliers_per_plane * 0.5 *
// outlier_cost using the effective values when unset.
func (c *SegmentationConfig) GetLabelCost() float64 {
	if c.LabelCost == nil {
		return float64(c.GetMinInliersPerPlane()) * 0.5 * c.GetOutlierCost()
	}
	return *c.LabelCost
}

// GetMaxNumIterations returns the max_num_iterations value or the default.
func (c *SegmentationConfig) GetMaxNumIterations() int {
	if c.MaxNumIterations == nil {
		return 25
	}
	return *c.MaxNumIterations
}

// GetMaxCurvature returns the max_curvature value or the default.
func (c *SegmentationConfig) GetMaxCurvature() float64 {
	if c.MaxCurvature == nil {
		return 0.001
	}
	return *c.MaxCurvature
}

// GetGCScale returns the gc_scale value or the default.
func (c *SegmentationConfig) GetGCScale() int {
	if c.GCScale == nil {
		return 10000
	}
	return *c.GCScale
}

// GetPointcloudTopic returns the input topic, falling back to
// DefaultPointcloudTopic when unset or empty.
func (c *SegmentationConfig) GetPointcloudTopic() string {
	if c.PointcloudTopic == nil || *c.PointcloudTopic == "" {
		return DefaultPointcloudTopic
	}
	return *c.PointcloudTopic
}

// GetSegmentedTopic returns the result topic or the default.
func (c *SegmentationConfig) GetSegmentedTopic() string {
	if c.SegmentedTopic == nil || *c.SegmentedTopic == "" {
		return DefaultSegmentedTopic
	}
	return *c.SegmentedTopic
}

// GetMQTT returns the MQTT settings, or the zero value when unset.
func (c *SegmentationConfig) GetMQTT() MQTTConfig {
	if c.MQTT == nil {
		return MQTTConfig{}
	}
	return *c.MQTT
}
