package stream

import (
	"errors"
	"testing"
)

func TestRegistry_RecordIdempotent(t *testing.T) {
	r := NewRegistry()

	if !r.Record(KindTick, "R_100", []byte(`{"ticks":"R_100"}`)) {
		t.Error("first record should report newly added")
	}
	if r.Record(KindTick, "R_100", []byte(`{"ticks":"R_100"}`)) {
		t.Error("duplicate record must be a no-op")
	}
	if r.Len() != 1 {
		t.Errorf("len = %d; want 1", r.Len())
	}
}

func TestRegistry_KindsAreSeparateNamespaces(t *testing.T) {
	r := NewRegistry()

	r.Record(KindTick, "42", []byte(`a`))
	r.Record(KindContract, "42", []byte(`b`))

	if r.Len() != 2 {
		t.Errorf("len = %d; want 2 (same key, different kinds)", r.Len())
	}
	if _, ok := r.Forget(KindTick, "42"); !ok {
		t.Fatal("tick entry missing")
	}
	if !r.Has(KindContract, "42") {
		t.Error("forgetting a tick entry removed the contract entry")
	}
}

func TestRegistry_ForgetReturnsUpstreamID(t *testing.T) {
	r := NewRegistry()
	r.Record(KindTick, "R_100", []byte(`a`))
	r.SetUpstreamID(KindTick, "R_100", "uuid-1")

	id, ok := r.Forget(KindTick, "R_100")
	if !ok || id != "uuid-1" {
		t.Errorf("Forget = (%q, %v); want (uuid-1, true)", id, ok)
	}
	if _, ok := r.Forget(KindTick, "R_100"); ok {
		t.Error("second forget must report missing")
	}
}

func TestRegistry_ReplayAllOrderAndReset(t *testing.T) {
	r := NewRegistry()
	r.Record(KindTick, "R_100", []byte(`1`))
	r.Record(KindTick, "R_50", []byte(`2`))
	r.Record(KindContract, "7", []byte(`3`))
	r.SetUpstreamID(KindTick, "R_100", "stale")

	var sent []string
	err := r.ReplayAll(func(p []byte) error {
		sent = append(sent, string(p))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"1", "2", "3"}
	if len(sent) != len(want) {
		t.Fatalf("replayed %d frames; want %d", len(sent), len(want))
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Errorf("frame %d = %s; want %s (insertion order)", i, sent[i], want[i])
		}
	}

	// Old provider ids are meaningless after a resubscribe.
	id, _ := r.Forget(KindTick, "R_100")
	if id != "" {
		t.Errorf("upstream id after replay = %q; want cleared", id)
	}
}

func TestRegistry_ReplayStopsOnSendFailure(t *testing.T) {
	r := NewRegistry()
	r.Record(KindTick, "R_100", []byte(`1`))
	r.Record(KindTick, "R_50", []byte(`2`))

	boom := errors.New("socket gone")
	calls := 0
	err := r.ReplayAll(func([]byte) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v; want the send failure", err)
	}
	if calls != 1 {
		t.Errorf("send calls = %d; want 1 (stop at first failure)", calls)
	}
	if r.Len() != 2 {
		t.Error("failed replay must not drop entries; the next reconnect retries")
	}
}
