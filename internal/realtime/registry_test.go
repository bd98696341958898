package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

type fakeClient struct {
	id string

	mu     sync.Mutex
	frames [][]byte
}

func newFakeClient(id string) *fakeClient {
	return &fakeClient{id: id}
}

func (f *fakeClient) ID() string {
	return f.id
}

func (f *fakeClient) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, payload)
	return nil
}

// presenceCounts decodes every users_update frame the client received.
func (f *fakeClient) presenceCounts(t *testing.T) []int {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	var counts []int
	for _, frame := range f.frames {
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("bad frame %q: %v", frame, err)
		}
		if env.Type != EventUsersUpdate {
			continue
		}
		var presence PresencePayload
		if err := json.Unmarshal(env.Data, &presence); err != nil {
			t.Fatalf("bad presence payload %q: %v", env.Data, err)
		}
		counts = append(counts, presence.Count)
	}
	return counts
}

func (f *fakeClient) received(t *testing.T, eventType string) int {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, frame := range f.frames {
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("bad frame %q: %v", frame, err)
		}
		if env.Type == eventType {
			n++
		}
	}
	return n
}

func TestJoinBroadcastsPresenceToRoom(t *testing.T) {
	r := NewRegistry()
	c1 := newFakeClient("c1")
	c2 := newFakeClient("c2")

	if count := r.Join(c1, "global", UserSummary{ID: "u1"}); count != 1 {
		t.Fatalf("first join count = %d, want 1", count)
	}
	if count := r.Join(c2, "global", UserSummary{ID: "u2"}); count != 2 {
		t.Fatalf("second join count = %d, want 2", count)
	}

	// c1 saw its own join and then c2's.
	if counts := c1.presenceCounts(t); len(counts) != 2 || counts[0] != 1 || counts[1] != 2 {
		t.Fatalf("c1 presence counts = %v, want [1 2]", counts)
	}
	if counts := c2.presenceCounts(t); len(counts) != 1 || counts[0] != 2 {
		t.Fatalf("c2 presence counts = %v, want [2]", counts)
	}
}

func TestLeaveBroadcastsReducedCount(t *testing.T) {
	r := NewRegistry()
	c1 := newFakeClient("c1")
	c2 := newFakeClient("c2")
	r.Join(c1, "global", UserSummary{ID: "u1"})
	r.Join(c2, "global", UserSummary{ID: "u2"})

	r.Leave("c2")

	counts := c1.presenceCounts(t)
	if counts[len(counts)-1] != 1 {
		t.Fatalf("c1 final presence count = %d, want 1", counts[len(counts)-1])
	}
	if got := r.PresenceCount("global"); got != 1 {
		t.Fatalf("PresenceCount = %d, want 1", got)
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	c1 := newFakeClient("c1")
	r.Join(c1, "global", UserSummary{ID: "u1"})

	r.Leave("c1")
	r.Leave("c1")
	r.Leave("never-joined")

	if got := r.PresenceCount("global"); got != 0 {
		t.Fatalf("PresenceCount = %d, want 0", got)
	}
}

func TestRejoinReplacesMembership(t *testing.T) {
	r := NewRegistry()
	c1 := newFakeClient("c1")

	r.Join(c1, "session:a", UserSummary{ID: "u1"})
	r.Join(c1, "session:b", UserSummary{ID: "u1"})

	if got := r.PresenceCount("session:a"); got != 0 {
		t.Fatalf("old room count = %d, want 0", got)
	}
	if got := r.PresenceCount("session:b"); got != 1 {
		t.Fatalf("new room count = %d, want 1", got)
	}
}

func TestPresenceAccountingUnderConcurrency(t *testing.T) {
	r := NewRegistry()
	const joins = 50
	const leaves = 20

	clients := make([]*fakeClient, joins)
	var wg sync.WaitGroup
	for i := 0; i < joins; i++ {
		clients[i] = newFakeClient(fmt.Sprintf("c%d", i))
		wg.Add(1)
		go func(c *fakeClient, i int) {
			defer wg.Done()
			r.Join(c, "global", UserSummary{ID: fmt.Sprintf("u%d", i)})
		}(clients[i], i)
	}
	wg.Wait()

	for i := 0; i < leaves; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.Leave(id)
		}(fmt.Sprintf("c%d", i))
	}
	wg.Wait()

	if got := r.PresenceCount("global"); got != joins-leaves {
		t.Fatalf("PresenceCount = %d, want %d", got, joins-leaves)
	}
}

func TestBroadcastToRoomReachesOnlyCurrentMembers(t *testing.T) {
	r := NewRegistry()
	in1 := newFakeClient("in1")
	in2 := newFakeClient("in2")
	out := newFakeClient("out")
	late := newFakeClient("late")

	r.Join(in1, "session:x", UserSummary{ID: "u1"})
	r.Join(in2, "session:x", UserSummary{ID: "u2"})
	r.Join(out, "session:y", UserSummary{ID: "u3"})

	frame := Encode(EventReceiveMessage, map[string]string{"text": "hi"})
	if delivered := r.BroadcastToRoom("session:x", frame); delivered != 2 {
		t.Fatalf("delivered = %d, want 2", delivered)
	}

	r.Join(late, "session:x", UserSummary{ID: "u4"})

	if got := in1.received(t, EventReceiveMessage); got != 1 {
		t.Errorf("in1 received %d messages, want 1", got)
	}
	if got := in2.received(t, EventReceiveMessage); got != 1 {
		t.Errorf("in2 received %d messages, want 1", got)
	}
	if got := out.received(t, EventReceiveMessage); got != 0 {
		t.Errorf("out received %d messages, want 0", got)
	}
	if got := late.received(t, EventReceiveMessage); got != 0 {
		t.Errorf("late joiner received %d messages, want 0", got)
	}
}

func TestBroadcastToUnknownRoomIsNoop(t *testing.T) {
	r := NewRegistry()
	frame := Encode(EventReceiveMessage, map[string]string{"text": "hi"})
	if delivered := r.BroadcastToRoom("session:ghost", frame); delivered != 0 {
		t.Fatalf("delivered = %d, want 0", delivered)
	}
}

func TestNotifyByEmailTargetsExactly(t *testing.T) {
	r := NewRegistry()
	a1 := newFakeClient("a1")
	a2 := newFakeClient("a2")
	b := newFakeClient("b")

	r.Identify(a1, "A@Example.com")
	r.Identify(a2, "a@example.com ")
	r.Identify(b, "b@example.com")

	frame := Encode(EventSessionInvite, map[string]string{"session": "s1"})
	if delivered := r.NotifyByEmail("a@example.com", frame); delivered != 2 {
		t.Fatalf("delivered = %d, want 2", delivered)
	}
	if got := a1.received(t, EventSessionInvite); got != 1 {
		t.Errorf("a1 received %d invites, want 1", got)
	}
	if got := a2.received(t, EventSessionInvite); got != 1 {
		t.Errorf("a2 received %d invites, want 1", got)
	}
	if got := b.received(t, EventSessionInvite); got != 0 {
		t.Errorf("b received %d invites, want 0", got)
	}
}

func TestNotifyByEmailNoopsWhenOffline(t *testing.T) {
	r := NewRegistry()
	frame := Encode(EventSessionInvite, map[string]string{"session": "s1"})
	if delivered := r.NotifyByEmail("nobody@example.com", frame); delivered != 0 {
		t.Fatalf("delivered = %d, want 0", delivered)
	}
}

func TestReidentifyMovesAssociation(t *testing.T) {
	r := NewRegistry()
	c := newFakeClient("c1")

	r.Identify(c, "old@example.com")
	r.Identify(c, "new@example.com")

	frame := Encode(EventSessionInvite, map[string]string{"session": "s1"})
	if delivered := r.NotifyByEmail("old@example.com", frame); delivered != 0 {
		t.Fatalf("old email delivered = %d, want 0", delivered)
	}
	if delivered := r.NotifyByEmail("new@example.com", frame); delivered != 1 {
		t.Fatalf("new email delivered = %d, want 1", delivered)
	}
}

func TestDisconnectCleansMembershipAndEmail(t *testing.T) {
	r := NewRegistry()
	c := newFakeClient("c1")

	r.Join(c, "global", UserSummary{ID: "u1"})
	r.Identify(c, "a@example.com")

	r.Disconnect("c1")
	r.Disconnect("c1")

	if got := r.PresenceCount("global"); got != 0 {
		t.Fatalf("PresenceCount = %d, want 0", got)
	}
	frame := Encode(EventSessionInvite, map[string]string{"session": "s1"})
	if delivered := r.NotifyByEmail("a@example.com", frame); delivered != 0 {
		t.Fatalf("delivered after disconnect = %d, want 0", delivered)
	}
}
