package kernelsim

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nagyistoce/jupyter-client/internal/kernel"
	"github.com/nagyistoce/jupyter-client/internal/transport"
)

func TestHubDeliversInOrder(t *testing.T) {
	h := NewHub(8, quietLogger())
	local, peer := transport.Pipe("iopub", 8)
	sub := h.Add("iopub", local)
	defer h.Remove(sub)

	for i := 0; i < 3; i++ {
		h.Publish(kernel.NewEnvelope("stdout", map[string]any{"text": fmt.Sprint(i)}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		env, err := peer.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive() #%d error: %v", i, err)
		}
		if got := env.String("text"); got != fmt.Sprint(i) {
			t.Errorf("envelope %d text = %q", i, got)
		}
	}
}

func TestHubEvictsSlowSubscriberUnderConcurrentPublish(t *testing.T) {
	h := NewHub(1, quietLogger())
	// Nobody reads the peer, so the write pump blocks after one envelope and
	// the subscriber buffer fills.
	local, peer := transport.Pipe("iopub", 0)
	defer peer.Close()
	sub := h.Add("iopub", local)

	const publishers = 8
	start := make(chan struct{})
	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < 200; i++ {
				h.Publish(kernel.NewEnvelope("status", map[string]any{"execution_state": "idle"}))
			}
		}()
	}
	close(start)
	wg.Wait()

	if n := h.Count(); n != 0 {
		t.Fatalf("Count() = %d, want slow subscriber evicted", n)
	}
	// Removing an evicted subscriber again must not close its channel twice.
	h.Remove(sub)
}
