package tunnel

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ssh"
)

// TestBuildAuthMethods_ExplicitKey verifies that a key file is loaded.
func TestBuildAuthMethods_ExplicitKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_bench")
	writeTestKey(t, keyPath)

	methods, err := BuildAuthMethods(&SSHConfig{KeyPath: keyPath})
	if err != nil {
		t.Fatalf("BuildAuthMethods: %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("expected one auth method, got %d", len(methods))
	}
}

// TestBuildAuthMethods_MissingKey verifies a clear error for a bad path.
func TestBuildAuthMethods_MissingKey(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	_, err := BuildAuthMethods(&SSHConfig{KeyPath: "/nonexistent/key"})
	if err == nil {
		t.Fatal("expected error for missing key")
	}
}

// TestBuildAuthMethods_AgentUnset verifies --ssh-agent without an agent.
func TestBuildAuthMethods_AgentUnset(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	_, err := BuildAuthMethods(&SSHConfig{UseAgent: true})
	if err == nil {
		t.Fatal("expected error when SSH_AUTH_SOCK is empty")
	}
}

// TestHostKeyCallback_Insecure verifies the permissive callback.
func TestHostKeyCallback_Insecure(t *testing.T) {
	cb, err := hostKeyCallback(&SSHConfig{StrictHostKey: false})
	if err != nil {
		t.Fatal(err)
	}
	if cb == nil {
		t.Fatal("callback should not be nil")
	}
}

// TestHostKeyCallback_StrictMissingFile verifies strict mode needs a
// readable known_hosts file.
func TestHostKeyCallback_StrictMissingFile(t *testing.T) {
	cfg := &SSHConfig{
		StrictHostKey: true,
		KnownHosts:    filepath.Join(t.TempDir(), "absent"),
	}
	if _, err := hostKeyCallback(cfg); err == nil {
		t.Fatal("expected error for missing known_hosts")
	}
}

// TestSSHTunnel_DialBeforeConnect verifies Dial fails cleanly.
func TestSSHTunnel_DialBeforeConnect(t *testing.T) {
	tun := NewSSHTunnel(&SSHConfig{Host: "gateway.lab"}, nil)
	if tun.IsAlive() {
		t.Fatal("new tunnel should not be alive")
	}
	if _, err := tun.Dial(context.Background(), "tcp", "10.0.0.5:1234"); err == nil {
		t.Fatal("expected error dialing through an unconnected tunnel")
	}
	if err := tun.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// ── helpers ──────────────────────────────────────────────────────────

// writeTestKey generates an unencrypted ed25519 key in OpenSSH format.
func writeTestKey(t *testing.T, path string) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "bench test key")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
}
