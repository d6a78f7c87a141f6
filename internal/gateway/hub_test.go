package gateway

import (
	"encoding/json"
	"strconv"
	"sync"
	"testing"
)

func envelopeSeq(t *testing.T, env []byte) int64 {
	t.Helper()
	var e struct {
		Seq int64 `json:"seq"`
	}
	if err := json.Unmarshal(env, &e); err != nil {
		t.Fatalf("decode envelope %s: %v", env, err)
	}
	return e.Seq
}

// Clients joining while runs are broadcast see every seq once, in order.
func TestHub_RegisterDuringBroadcast(t *testing.T) {
	const (
		broadcasts = 200
		joiners    = 20
	)
	h := NewHub(broadcasts, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < broadcasts; i++ {
			h.Broadcast([]byte(strconv.Itoa(i)))
		}
	}()

	clients := make([]*Client, joiners)
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clients[i], _ = h.register(nil, 0)
		}(i)
	}
	wg.Wait()

	if got := h.Seq(); got != broadcasts {
		t.Fatalf("Seq() = %d, want %d", got, broadcasts)
	}
	if got := h.ClientCount(); got != joiners {
		t.Fatalf("ClientCount() = %d, want %d", got, joiners)
	}

	for i, c := range clients {
		if n := len(c.send); n != broadcasts {
			t.Fatalf("client %d: got %d envelopes, want %d", i, n, broadcasts)
		}
		want := int64(1)
		for n := len(c.send); n > 0; n-- {
			if seq := envelopeSeq(t, <-c.send); seq != want {
				t.Fatalf("client %d: seq %d, want %d", i, seq, want)
			}
			want++
		}
	}
}

func TestHub_RegisterReplaysAfterLastSeq(t *testing.T) {
	h := NewHub(10, nil)
	for i := 0; i < 5; i++ {
		h.Broadcast([]byte(`{}`))
	}

	c, count := h.register(nil, 3)
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	if n := len(c.send); n != 2 {
		t.Fatalf("backlog = %d, want 2", n)
	}
	if seq := envelopeSeq(t, <-c.send); seq != 4 {
		t.Errorf("first replayed seq = %d, want 4", seq)
	}

	h.Broadcast([]byte(`{}`))
	<-c.send
	if seq := envelopeSeq(t, <-c.send); seq != 6 {
		t.Errorf("live seq = %d, want 6", seq)
	}
}
