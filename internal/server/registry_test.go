package server

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"reflect"
	"sort"
	"sync"
	"testing"
)

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestPeer(id string) *Peer {
	return &Peer{ID: PeerID(id), Session: "session-" + id, Mailbox: NewMailbox()}
}

func drain(m *Mailbox) []string {
	var out []string
	for {
		msg, ok := tryReceive(m)
		if !ok {
			return out
		}
		out = append(out, msg)
	}
}

func TestRegistryInsertAndRemove(t *testing.T) {
	r := newTestRegistry()
	a := newTestPeer("A")

	if n := r.Insert(a); n != 1 {
		t.Fatalf("Insert returned count %d, want 1", n)
	}
	if r.Lookup("A") != a {
		t.Fatal("Lookup did not return the inserted peer")
	}

	if !r.Remove("A") {
		t.Error("First Remove reported nothing removed")
	}
	if r.Remove("A") {
		t.Error("Second Remove reported a removal")
	}
	if r.Len() != 0 {
		t.Errorf("Expected empty registry, got %d entries", r.Len())
	}
	if !a.Mailbox.Closed() {
		t.Error("Remove did not close the peer's mailbox")
	}
}

func TestRegistryInsertReplacesEntry(t *testing.T) {
	r := newTestRegistry()
	old := newTestPeer("A")
	replacement := &Peer{ID: "A", Session: "second", Mailbox: NewMailbox()}

	r.Insert(old)
	if n := r.Insert(replacement); n != 1 {
		t.Fatalf("Expected a single entry after replacement, got %d", n)
	}

	if !old.Mailbox.Closed() {
		t.Error("Replaced mailbox should be closed")
	}
	if r.Lookup("A") != replacement {
		t.Error("Lookup did not return the replacement")
	}

	// The displaced connection cleaning up must not remove its successor.
	if r.RemovePeer(old) {
		t.Error("RemovePeer removed an entry owned by another session")
	}
	if r.Lookup("A") != replacement {
		t.Error("Replacement entry was removed by the stale session")
	}

	if !r.RemovePeer(replacement) {
		t.Error("RemovePeer did not remove the current session")
	}
	if r.RemovePeer(replacement) {
		t.Error("RemovePeer removed the same session twice")
	}
}

func TestBroadcastExceptSkipsSender(t *testing.T) {
	r := newTestRegistry()
	a, b, c := newTestPeer("A"), newTestPeer("B"), newTestPeer("C")
	r.Insert(a)
	r.Insert(b)
	r.Insert(c)

	if n := r.Broadcast("A", "hi"); n != 2 {
		t.Errorf("Broadcast delivered to %d peers, want 2", n)
	}

	for _, p := range []*Peer{b, c} {
		if got := drain(p.Mailbox); !reflect.DeepEqual(got, []string{"A: hi"}) {
			t.Errorf("Peer %s received %v", p.ID, got)
		}
	}
	if got := drain(a.Mailbox); len(got) != 0 {
		t.Errorf("Sender received its own broadcast: %v", got)
	}
}

func TestBroadcastSkipsClosedMailbox(t *testing.T) {
	r := newTestRegistry()
	a, b, c := newTestPeer("A"), newTestPeer("B"), newTestPeer("C")
	r.Insert(a)
	r.Insert(b)
	r.Insert(c)

	// B's outbound side is gone but its entry has not been removed yet.
	b.Mailbox.Close()

	if n := r.Broadcast("A", "hi"); n != 1 {
		t.Errorf("Broadcast delivered to %d peers, want 1", n)
	}
	if got := drain(c.Mailbox); !reflect.DeepEqual(got, []string{"A: hi"}) {
		t.Errorf("C received %v", got)
	}
}

func TestBroadcastAfterRemoveLeavesOthersUntouched(t *testing.T) {
	r := newTestRegistry()
	a, b, c := newTestPeer("A"), newTestPeer("B"), newTestPeer("C")
	r.Insert(a)
	r.Insert(b)
	r.Insert(c)

	r.Broadcast("A", "first")
	r.Remove("B")
	r.Remove("B")
	r.Broadcast("A", "second")

	if got := drain(c.Mailbox); !reflect.DeepEqual(got, []string{"A: first", "A: second"}) {
		t.Errorf("C received %v", got)
	}
}

func TestBroadcastPreservesPerSenderOrder(t *testing.T) {
	const count = 100

	r := newTestRegistry()
	a, b := newTestPeer("A"), newTestPeer("B")
	c := newTestPeer("C")
	r.Insert(a)
	r.Insert(b)
	r.Insert(c)

	var wg sync.WaitGroup
	wg.Add(2)
	for _, sender := range []PeerID{"A", "C"} {
		go func(sender PeerID) {
			defer wg.Done()
			for i := 0; i < count; i++ {
				r.Broadcast(sender, fmt.Sprint(i))
			}
		}(sender)
	}
	wg.Wait()

	next := map[string]int{}
	for _, msg := range drain(b.Mailbox) {
		var sender string
		var i int
		if _, err := fmt.Sscanf(msg, "%1s: %d", &sender, &i); err != nil {
			t.Fatalf("Unexpected message %q: %v", msg, err)
		}
		if i != next[sender] {
			t.Fatalf("From %s: got %d, expected %d", sender, i, next[sender])
		}
		next[sender]++
	}
	if next["A"] != count || next["C"] != count {
		t.Errorf("Expected %d messages from each sender, got %v", count, next)
	}
}

// TestRegistryMembershipMatchesOpenConnections replays a random sequence of
// joins and leaves and compares the registry against a simple model.
func TestRegistryMembershipMatchesOpenConnections(t *testing.T) {
	r := newTestRegistry()
	rng := rand.New(rand.NewSource(1))
	open := map[PeerID]bool{}

	for step := 0; step < 500; step++ {
		id := PeerID(fmt.Sprintf("peer-%d", rng.Intn(20)))
		if rng.Intn(2) == 0 && !open[id] {
			r.Insert(newTestPeer(string(id)))
			open[id] = true
		} else {
			r.Remove(id)
			delete(open, id)
		}
	}

	var want []PeerID
	for id := range open {
		want = append(want, id)
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	got := r.IDs()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Registry holds %v, expected %v", got, want)
	}
}

func TestRegistryConcurrentOperations(t *testing.T) {
	r := newTestRegistry()
	var wg sync.WaitGroup

	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			id := PeerID(fmt.Sprintf("peer-%d", g))
			for i := 0; i < 100; i++ {
				p := &Peer{ID: id, Session: fmt.Sprint(i), Mailbox: NewMailbox()}
				r.Insert(p)
				r.Broadcast(id, "ping")
				r.RemovePeer(p)
			}
		}(g)
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Errorf("Expected empty registry, got %v", r.IDs())
	}
}
