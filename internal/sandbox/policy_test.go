package sandbox

import "testing"

func TestNewCarriesPolicy(t *testing.T) {
	p := Policy{ReadPaths: []string{"/tmp"}, WritePaths: []string{"/tmp/out"}, AllowNetwork: true}
	b := New(p)
	if len(b.Policy.ReadPaths) != 1 || b.Policy.ReadPaths[0] != "/tmp" {
		t.Fatalf("expected read paths carried through, got %+v", b.Policy)
	}
	if !b.Policy.AllowNetwork {
		t.Fatal("expected AllowNetwork carried through")
	}
}
