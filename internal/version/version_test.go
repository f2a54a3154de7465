package version

import "testing"

func TestString(t *testing.T) {
	old := []string{Version, GitSHA, BuildTime}
	t.Cleanup(func() { Version, GitSHA, BuildTime = old[0], old[1], old[2] })

	Version, GitSHA, BuildTime = "1.2.0", "abc123", "2026-10-01T00:00:00Z"
	if got, want := String(), "1.2.0 (abc123, built 2026-10-01T00:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
