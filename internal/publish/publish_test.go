package publish

import (
	"testing"

	"github.com/banshee-data/cloudseg/internal/cloud"
)

func TestMultiPublishesInOrder(t *testing.T) {
	var order []string
	record := func(name string) Sink {
		return SinkFunc(func(c cloud.Cloud) {
			order = append(order, name)
			if c.Header.Seq != 4 {
				t.Errorf("%s got seq %d, want 4", name, c.Header.Seq)
			}
		})
	}

	m := Multi{record("first"), nil, record("second")}
	m.Publish(testCloud(4, 2))

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("publish order = %v", order)
	}
}

func TestMultiWithHub(t *testing.T) {
	h := NewHub(DefaultHubConfig())
	if err := h.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.Stop()

	sub, err := h.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	var direct int
	Multi{h, SinkFunc(func(cloud.Cloud) { direct++ })}.Publish(testCloud(9, 3))

	if got := receive(t, sub); got.Header.Seq != 9 || got.Len() != 3 {
		t.Errorf("hub delivered seq=%d len=%d", got.Header.Seq, got.Len())
	}
	if direct != 1 {
		t.Errorf("direct sink called %d times, want 1", direct)
	}
}
