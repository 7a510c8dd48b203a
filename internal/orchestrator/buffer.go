package orchestrator

import (
	"sync"

	"github.com/banshee-data/cloudseg/internal/cloud"
)

// SharedCloudBuffer holds the most recently received cloud. Every entry
// point writes it and the stream and goal paths segment what it holds.
// Content is copied in and out under the lock, so a reader never observes
// a partially replaced cloud.
type SharedCloudBuffer struct {
	mu    sync.RWMutex
	cloud cloud.Cloud
}

// Write replaces the buffer content with a deep copy of c.
func (b *SharedCloudBuffer) Write(c cloud.Cloud) {
	cp := c.Clone()
	b.mu.Lock()
	b.cloud = cp
	b.mu.Unlock()
}

// ReadSnapshotForProcessing returns a deep copy of the current content.
func (b *SharedCloudBuffer) ReadSnapshotForProcessing() cloud.Cloud {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cloud.Clone()
}
