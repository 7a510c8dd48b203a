// Package segmentation defines the segmentation engine contract and the
// default region-growing engine.
//
// An Engine turns a point cloud into a labeled point cloud of the same
// length and order; label 0 marks points that belong to no segment.
// Engines hold configuration and scratch state and are NOT safe for
// concurrent use: callers must serialise Segment calls on one instance.
package segmentation
