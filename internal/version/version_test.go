package version

import (
	"strings"
	"testing"
)

func TestDefaultsInitialized(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if BuildTime == "" {
		t.Error("BuildTime should be initialized")
	}
	if GitCommit == "" {
		t.Error("GitCommit should be initialized")
	}
}

func TestStringIncludesAllFields(t *testing.T) {
	s := String()
	for _, part := range []string{Version, GitCommit, BuildTime} {
		if !strings.Contains(s, part) {
			t.Errorf("version string %q missing %q", s, part)
		}
	}
}
