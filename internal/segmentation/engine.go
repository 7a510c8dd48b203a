package segmentation

import (
	"errors"

	"github.com/banshee-data/cloudseg/internal/cloud"
	"github.com/banshee-data/cloudseg/internal/config"
)

// ErrInvalidConfig is wrapped by SetConfig when a parameter is unusable.
var ErrInvalidConfig = errors.New("invalid segmentation config")

// Engine is a stateful segmentation algorithm.
type Engine interface {
	// SetConfig replaces the engine configuration.
	SetConfig(cfg config.Segmentation) error

	// GetConfig returns the current configuration.
	GetConfig() config.Segmentation

	// Segment labels every point of in. The output has the same header,
	// length and point order as the input.
	Segment(in cloud.Cloud) (cloud.Cloud, error)
}
