package bench

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"gpiblan/config"
	"gpiblan/gpib"
	"gpiblan/internal/metrics"
	"gpiblan/internal/testutil/adaptertest"
)

// twoRacks starts two fake adapters and a bench spec pointing at them.
func twoRacks(t *testing.T) (*config.Bench, *adaptertest.Adapter, *adaptertest.Adapter) {
	t.Helper()

	a := adaptertest.New(t, 0)
	b := adaptertest.New(t, 0)
	spec := &config.Bench{
		Timeout:    time.Second,
		BufferSize: config.DefaultBufferSize,
		Adapters: []config.AdapterSpec{
			{Name: "rack-a", Host: a.Host(), Port: a.Port(), Timeout: time.Second, Devices: []config.DeviceSpec{
				{Name: "psu", Address: 5},
				{Name: "dmm", Address: 22},
			}},
			{Name: "rack-b", Host: b.Host(), Port: b.Port(), Timeout: time.Second, Devices: []config.DeviceSpec{
				{Name: "scope", Address: 7},
			}},
		},
	}
	return spec, a, b
}

func open(t *testing.T, spec *config.Bench, o Options) *Bench {
	t.Helper()
	bn, err := Open(context.Background(), spec, o)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { bn.Close() })
	return bn
}

func TestOpen(t *testing.T) {
	spec, a, b := twoRacks(t)
	m := metrics.New()
	bn := open(t, spec, Options{Metrics: m})

	if len(bn.Adapters()) != 2 {
		t.Fatalf("adapters = %d, want 2", len(bn.Adapters()))
	}
	if m.ActiveSessions() != 2 {
		t.Errorf("active sessions = %d, want 2", m.ActiveSessions())
	}
	for _, ad := range []*adaptertest.Adapter{a, b} {
		lines := ad.WaitLines(3)
		if strings.Join(lines[:3], "|") != "++addr|++auto 1|++mode 1" {
			t.Errorf("handshake = %q", lines)
		}
	}
	if ra, ok := bn.Adapter("rack-a"); !ok || len(ra.Devices()) != 2 {
		t.Errorf("rack-a lookup failed")
	}
}

func TestOpen_FailureClosesOthers(t *testing.T) {
	spec, _, _ := twoRacks(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	dead := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	spec.Adapters[1].Port = dead

	m := metrics.New()
	_, err = Open(context.Background(), spec, Options{Metrics: m})
	if err == nil {
		t.Fatal("expected error for unreachable adapter")
	}
	if !strings.Contains(err.Error(), "rack-b") {
		t.Errorf("error should name the adapter: %v", err)
	}
	if m.ActiveSessions() != 0 {
		t.Errorf("active sessions = %d after failed open, want 0", m.ActiveSessions())
	}
}

func TestResolve(t *testing.T) {
	spec, a, _ := twoRacks(t)
	a.ReplyAt(22, "READ?", "+1.000E+00\n")
	bn := open(t, spec, Options{})

	dmm, err := bn.Resolve("dmm")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if dmm.Adapter().Name() != "rack-a" || dmm.Device().Address() != 22 {
		t.Errorf("dmm resolved to %s", dmm)
	}
	reply, err := dmm.Query("READ?\n")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if reply != "+1.000E+00\n" {
		t.Errorf("reply = %q", reply)
	}
	if a.Address() != 22 {
		t.Errorf("adapter address = %d, want 22", a.Address())
	}

	if _, err := bn.Resolve("nope"); err == nil {
		t.Error("unknown device should fail")
	}
}

func TestTarget_Send(t *testing.T) {
	spec, a, _ := twoRacks(t)
	bn := open(t, spec, Options{})

	psu, err := bn.Resolve("psu")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := psu.Send("OUT 1\n"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	lines := a.WaitLines(5)
	if strings.Join(lines[3:5], "|") != "++addr 5|OUT 1" {
		t.Errorf("lines = %q", lines)
	}
}

func TestBroadcast(t *testing.T) {
	spec, a, b := twoRacks(t)
	a.Reply("*IDN?", "RACK-A\n")
	b.Reply("*IDN?", "RACK-B\n")
	bn := open(t, spec, Options{})

	results := bn.Broadcast(context.Background(), "*IDN?\n", true)
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	want := []struct{ adapter, device, reply string }{
		{"rack-a", "psu", "RACK-A\n"},
		{"rack-a", "dmm", "RACK-A\n"},
		{"rack-b", "scope", "RACK-B\n"},
	}
	for i, w := range want {
		r := results[i]
		if r.Err != nil {
			t.Errorf("%s/%s: %v", r.Adapter, r.Device, r.Err)
			continue
		}
		if r.Adapter != w.adapter || r.Device != w.device || r.Reply != w.reply {
			t.Errorf("result %d = %+v, want %v", i, r, w)
		}
	}
	if len(Failed(results)) != 0 {
		t.Errorf("Failed = %v", Failed(results))
	}
}

func TestBroadcast_CancelledContext(t *testing.T) {
	spec, _, _ := twoRacks(t)
	bn := open(t, spec, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := bn.Broadcast(ctx, "*RST\n", false)
	if got := len(Failed(results)); got != 3 {
		t.Fatalf("failed = %d, want 3", got)
	}
	for _, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("%s: err = %v, want context.Canceled", r.Device, r.Err)
		}
	}
}

func TestExclusive(t *testing.T) {
	spec, a, b := twoRacks(t)
	bn := open(t, spec, Options{})

	var wg sync.WaitGroup
	err := bn.Exclusive(func(sessions map[string]*gpib.Session) error {
		if len(sessions) != 2 {
			t.Errorf("sessions = %d, want 2", len(sessions))
		}
		// A concurrent Send must wait until the exclusive section ends.
		psu, _ := bn.Resolve("psu")
		wg.Add(1)
		go func() {
			defer wg.Done()
			psu.Send("LATE\n") //nolint:errcheck
		}()

		if _, err := sessions["rack-a"].SendTo(22, "FIRST\n"); err != nil {
			return err
		}
		_, err := sessions["rack-b"].SendTo(7, "FIRST\n")
		return err
	})
	if err != nil {
		t.Fatalf("Exclusive: %v", err)
	}
	wg.Wait()

	la := a.WaitLines(7)[3:]
	if strings.Join(la, "|") != "++addr 22|FIRST|++addr 5|LATE" {
		t.Errorf("rack-a lines = %q", la)
	}
	lb := b.WaitLines(5)[3:]
	if strings.Join(lb, "|") != "++addr 7|FIRST" {
		t.Errorf("rack-b lines = %q", lb)
	}
}

func TestConnect_Retries(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	m := metrics.New()
	_, err = Connect(context.Background(), "127.0.0.1", port, Options{Retries: 1, Metrics: m})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "gave up after 2 attempts") {
		t.Errorf("error = %v", err)
	}
	if m.Snapshot().Reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", m.Snapshot().Reconnects)
	}
}

func TestConnect_ProtocolErrorNotRetried(t *testing.T) {
	a := adaptertest.New(t, 0)
	a.SetAddressReply([]byte("garbage\n"))

	m := metrics.New()
	_, err := Connect(context.Background(), a.Host(), a.Port(), Options{Retries: 3, Metrics: m})
	var pe *gpib.IntegerParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected IntegerParseError, got %v", err)
	}
	if m.Snapshot().Reconnects != 0 {
		t.Errorf("protocol error was retried %d times", m.Snapshot().Reconnects)
	}
}

func TestConnect_SilentAdapterRetried(t *testing.T) {
	a := adaptertest.New(t, 0)
	a.SetAddressReply([]byte{})

	m := metrics.New()
	_, err := Connect(context.Background(), a.Host(), a.Port(),
		Options{Retries: 1, Timeout: 100 * time.Millisecond, Metrics: m})
	if err == nil {
		t.Fatal("expected error")
	}
	if m.Snapshot().Reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", m.Snapshot().Reconnects)
	}
	if got := strings.Count(strings.Join(a.Lines(), "|"), "++addr"); got != 2 {
		t.Errorf("address queries = %d, want 2", got)
	}
}
