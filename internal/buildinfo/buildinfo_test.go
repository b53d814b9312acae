package buildinfo

import (
	"runtime"
	"strings"
	"testing"
)

func TestCurrent(t *testing.T) {
	info := Current()
	if info.Version != Version || info.GoVersion != runtime.Version() {
		t.Errorf("Current() = %+v", info)
	}
	if !strings.Contains(info.Platform, "/") {
		t.Errorf("Platform = %q, want os/arch", info.Platform)
	}
}

func TestString(t *testing.T) {
	if got := String(); !strings.HasPrefix(got, "health-companion "+Version) {
		t.Errorf("String() = %q", got)
	}
}
