package kernel

import (
	"sync"
	"testing"
	"time"
)

func TestQueueDrainInOrder(t *testing.T) {
	q := NewQueue()
	q.Post(StartedChannels{})
	q.Post(MessageReceived{Role: Broadcast, Envelope: NewEnvelope("stdout", nil)})
	q.Post(StoppedChannels{})

	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}

	var got []Event
	n := q.Drain(func(ev Event) { got = append(got, ev) })
	if n != 3 {
		t.Errorf("Drain() = %d, want 3", n)
	}
	assertKinds(t, got, KindStartedChannels, KindMessageReceived, KindStoppedChannels)

	if q.Len() != 0 {
		t.Errorf("Len() after drain = %d, want 0", q.Len())
	}
	if n := q.Drain(func(Event) { t.Error("handler called on empty queue") }); n != 0 {
		t.Errorf("Drain() on empty queue = %d", n)
	}
	if q.Posted() != 3 {
		t.Errorf("Posted() = %d, want 3", q.Posted())
	}
}

func TestQueueReadySignal(t *testing.T) {
	q := NewQueue()
	select {
	case <-q.Ready():
		t.Fatal("Ready fired on empty queue")
	default:
	}

	q.Post(StartedChannels{})
	q.Post(StoppedChannels{})

	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("Ready did not fire after Post")
	}
	if n := q.Drain(func(Event) {}); n != 2 {
		t.Errorf("Drain() = %d, want 2", n)
	}
}

func TestQueueHandlerMayPost(t *testing.T) {
	q := NewQueue()
	q.Post(StartedChannels{})

	n := q.Drain(func(Event) { q.Post(StoppedChannels{}) })
	if n != 1 {
		t.Errorf("first Drain() = %d, want 1", n)
	}
	if q.Len() != 1 {
		t.Errorf("event posted during drain lost; Len() = %d", q.Len())
	}
}

func TestQueuePreservesPerProducerOrder(t *testing.T) {
	q := NewQueue()
	const producers, perProducer = 3, 200

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(role Role) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Post(MessageReceived{Role: role, Envelope: NewEnvelope("stdout", map[string]any{"i": i})})
			}
		}(Role(p))
	}
	wg.Wait()

	next := map[Role]int{}
	q.Drain(func(ev Event) {
		mr := ev.(MessageReceived)
		i, _ := mr.Envelope.Int("i")
		if i != next[mr.Role] {
			t.Fatalf("%s: got %d, want %d", mr.Role, i, next[mr.Role])
		}
		next[mr.Role]++
	})
	for p := 0; p < producers; p++ {
		if next[Role(p)] != perProducer {
			t.Errorf("%s delivered %d events, want %d", Role(p), next[Role(p)], perProducer)
		}
	}
}

func TestSinkFunc(t *testing.T) {
	var got Kind
	var s Sink = SinkFunc(func(ev Event) { got = ev.Kind() })
	s.Post(StartedChannels{})
	if got != KindStartedChannels {
		t.Errorf("SinkFunc received %q", got)
	}
}
