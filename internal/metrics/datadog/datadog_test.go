package datadog

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"consolidate/internal/metrics"
)

func TestNewBackend_RequiresAddr(t *testing.T) {
	if _, err := NewBackend(Config{}); err == nil {
		t.Fatal("expected error for empty Addr")
	}
}

func TestLabelsToTags(t *testing.T) {
	got := labelsToTags(metrics.Labels{"status": "success", "dataset": "tracks"})
	want := []string{"dataset:tracks", "status:success"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tags (-want +got):\n%s", diff)
	}
	if labelsToTags(nil) != nil {
		t.Fatal("nil labels should give nil tags")
	}
}

// TestBackend_SendsOverUDP runs the backend against a local UDP listener
// standing in for the agent.
func TestBackend_SendsOverUDP(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp listen: %v", err)
	}
	defer pc.Close()

	b, err := NewBackend(Config{Addr: pc.LocalAddr().String(), Namespace: "consolidate."})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	b.IncCounter(metrics.RecordsTotal, 19, metrics.Labels{"dataset": "tracks", "kind": "written"})
	b.ObserveHistogram(metrics.StepDuration, 0.25, metrics.Labels{"dataset": "tracks"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var payload strings.Builder
	buf := make([]byte, 64*1024)
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	done := func() bool {
		s := payload.String()
		return strings.Contains(s, metrics.StepDuration) && strings.Contains(s, metrics.RecordsTotal)
	}
	for !done() {
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			t.Fatalf("read: %v (got %q)", err, payload.String())
		}
		payload.Write(buf[:n])
	}

	got := payload.String()
	for _, want := range []string{
		"consolidate." + metrics.RecordsTotal + ":19|c",
		"dataset:tracks,kind:written",
		"consolidate." + metrics.StepDuration + ":0.25|h",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("payload %q missing %q", got, want)
		}
	}
}
