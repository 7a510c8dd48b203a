package orchestrator

import (
	"sync"
	"testing"
)

func TestSharedCloudBufferCopies(t *testing.T) {
	var b SharedCloudBuffer

	if snap := b.ReadSnapshotForProcessing(); !snap.Empty() {
		t.Fatalf("new buffer has %d points", snap.Len())
	}

	in := makeCloud(3, 1)
	b.Write(in)
	in.Points[0].X = 99 // writer keeps ownership of its slice

	snap := b.ReadSnapshotForProcessing()
	if snap.Points[0].X == 99 {
		t.Error("Write did not copy the input points")
	}
	snap.Points[1].X = 42

	again := b.ReadSnapshotForProcessing()
	if again.Points[1].X == 42 {
		t.Error("snapshot shares memory with the buffer")
	}
}

func TestSharedCloudBufferReplaces(t *testing.T) {
	var b SharedCloudBuffer
	b.Write(makeCloud(5, 1))
	b.Write(makeCloud(2, 2))

	snap := b.ReadSnapshotForProcessing()
	if snap.Len() != 2 || snap.Header.Seq != 2 {
		t.Errorf("snapshot = seq %d with %d points, want seq 2 with 2 points", snap.Header.Seq, snap.Len())
	}
}

// Snapshots taken while writers run must always be one of the written
// clouds: every point carries the writer's seq in Z and the length matches.
func TestSharedCloudBufferNoTornReads(t *testing.T) {
	var b SharedCloudBuffer
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for w := 1; w <= 4; w++ {
		wg.Add(1)
		go func(seq uint32) {
			defer wg.Done()
			c := makeCloud(int(seq)*10, seq)
			for i := range c.Points {
				c.Points[i].Z = float32(seq)
			}
			for {
				select {
				case <-stop:
					return
				default:
					b.Write(c)
				}
			}
		}(uint32(w))
	}

	for i := 0; i < 2000; i++ {
		snap := b.ReadSnapshotForProcessing()
		if snap.Empty() {
			continue
		}
		seq := snap.Header.Seq
		if snap.Len() != int(seq)*10 {
			t.Fatalf("torn read: seq %d has %d points", seq, snap.Len())
		}
		for _, p := range snap.Points {
			if p.Z != float32(seq) {
				t.Fatalf("torn read: seq %d contains point from seq %v", seq, p.Z)
			}
		}
	}
	close(stop)
	wg.Wait()
}
