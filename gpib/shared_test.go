package gpib

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// TestShared_NoInterleaving drives one session from several goroutines
// and checks on the wire that every command reached the address it was
// meant for.
func TestShared_NoInterleaving(t *testing.T) {
	s, a := connect(t, 5)
	sh := Share(s)

	addrs := []int{1, 2, 3, 4, 96, 97}
	const perWorker = 20

	var wg sync.WaitGroup
	for _, addr := range addrs {
		wg.Add(1)
		go func(addr int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := sh.SendTo(addr, fmt.Sprintf("TAG %d\n", addr)); err != nil {
					t.Errorf("SendTo(%d): %v", addr, err)
					return
				}
			}
		}(addr)
	}
	wg.Wait()

	var lines []string
	sh.Do(func(s *Session) error { //nolint:errcheck
		lines = flush(t, s, a)
		return nil
	})

	current := 5
	tags := 0
	for _, l := range lines[3:] {
		switch {
		case strings.HasPrefix(l, "++addr "):
			current, _ = strconv.Atoi(strings.TrimPrefix(l, "++addr "))
		case strings.HasPrefix(l, "TAG "):
			tags++
			want, _ := strconv.Atoi(strings.TrimPrefix(l, "TAG "))
			if want != current {
				t.Fatalf("command for %d sent while %d was selected", want, current)
			}
		}
	}
	if tags != len(addrs)*perWorker {
		t.Errorf("tags = %d, want %d", tags, len(addrs)*perWorker)
	}
}

func TestShared_Query(t *testing.T) {
	s, a := connect(t, 5)
	a.Reply("VOUT?", "5.000\n")
	sh := Share(s)

	got, err := sh.Query(6, "VOUT?\n")
	if err != nil {
		t.Fatal(err)
	}
	if got != "5.000\n" {
		t.Errorf("Query = %q", got)
	}
	if err := sh.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLockAll(t *testing.T) {
	s1, _ := connect(t, 1)
	s2, _ := connect(t, 2)
	sh1, sh2 := Share(s1), Share(s2)

	l := LockAll(sh1, sh2, sh1)
	l.Lock()
	if sh1.mu.TryLock() || sh2.mu.TryLock() {
		t.Fatal("sessions should be locked")
	}
	l.Unlock()

	if !sh1.mu.TryLock() || !sh2.mu.TryLock() {
		t.Fatal("sessions should be unlocked")
	}
	sh1.mu.Unlock()
	sh2.mu.Unlock()
}
