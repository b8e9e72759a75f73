package protocol

import "testing"

func TestNegotiateKnownVersions(t *testing.T) {
	if v := Negotiate(nil, "2024-11-05").Version(); v != "2024-11-05" {
		t.Fatalf("expected legacy adapter, got version %s", v)
	}
	if v := Negotiate(nil, "2025-11-25").Version(); v != "2025-11-25" {
		t.Fatalf("expected modern adapter, got version %s", v)
	}
}

func TestNegotiateUnknownVersionUpgradesToLatest(t *testing.T) {
	v := Negotiate(nil, "totally-unknown-version").Version()
	if v != LatestVersion {
		t.Fatalf("expected upgrade to %s, got %s", LatestVersion, v)
	}
}

func TestNegotiateAliases(t *testing.T) {
	for _, alias := range []string{"2025-06-18", "latest"} {
		if v := Negotiate(nil, alias).Version(); v != LatestVersion {
			t.Fatalf("alias %q: expected %s, got %s", alias, LatestVersion, v)
		}
	}
}
