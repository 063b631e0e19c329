package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	old := Version
	defer func() { Version = old }()
	Version = "1.2.3"

	s := String()
	if !strings.HasPrefix(s, "cloudmesh 1.2.3 ") {
		t.Errorf("String() = %q", s)
	}
	if !strings.Contains(s, GitSHA) {
		t.Errorf("String() = %q, missing commit", s)
	}
}
