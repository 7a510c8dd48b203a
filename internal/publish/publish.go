// Package publish delivers segmentation results to observers. Hub fans a
// result out to in-process subscribers (the gRPC result stream) and Multi
// combines several sinks behind one Publish call.
package publish

import (
	"github.com/banshee-data/cloudseg/internal/cloud"
)

// Sink receives published clouds. Implementations must not block and must
// not modify c.
type Sink interface {
	Publish(c cloud.Cloud)
}

// Multi publishes to every sink in order.
type Multi []Sink

// Publish implements Sink.
func (m Multi) Publish(c cloud.Cloud) {
	for _, s := range m {
		if s != nil {
			s.Publish(c)
		}
	}
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(c cloud.Cloud)

// Publish implements Sink.
func (f SinkFunc) Publish(c cloud.Cloud) {
	f(c)
}
