package version

import "testing"

func TestString(t *testing.T) {
	oldVersion, oldSHA, oldTime := Version, GitSHA, BuildTime
	t.Cleanup(func() { Version, GitSHA, BuildTime = oldVersion, oldSHA, oldTime })

	Version, GitSHA, BuildTime = "1.2.0", "abc123", "2024-03-01T12:00:00Z"
	if got, want := String("segctl"), "segctl 1.2.0 (abc123, built 2024-03-01T12:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := Current(); got != (Info{Version: "1.2.0", GitSHA: "abc123", BuildTime: "2024-03-01T12:00:00Z"}) {
		t.Errorf("Current() = %+v", got)
	}
}
