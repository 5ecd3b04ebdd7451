package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestResolveConfigPath(t *testing.T) {
	cases := []struct {
		goos, home, appData, want string
	}{
		{"linux", "/home/u", "", filepath.Join("/home/u", ".config", "antigravity-bridge", "server.yaml")},
		{"darwin", "/Users/u", "", filepath.Join("/Users/u", "Library", "Application Support", "antigravity-bridge", "server.yaml")},
		{"windows", "C:/Users/u", "C:/Users/u/AppData/Roaming/", filepath.Join("C:/Users/u/AppData/Roaming", "antigravity-bridge", "server.yaml")},
	}
	for _, c := range cases {
		if got := ResolveConfigPath(c.goos, c.home, c.appData, "server.yaml"); got != c.want {
			t.Fatalf("%s: got %q want %q", c.goos, got, c.want)
		}
	}
}

func TestResolveStateDBPath(t *testing.T) {
	got := ResolveStateDBPath("linux", "/home/u", "")
	want := filepath.Join("/home/u", ".config", "Antigravity", "User", "globalStorage", "state.vscdb")
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("ANTIGRAVITY_PORT", "9000")
	t.Setenv("ANTIGRAVITY_READ_ONLY", "yes")
	t.Setenv("ANTIGRAVITY_REQUEST_TIMEOUT", "1500")
	t.Setenv("ANTIGRAVITY_DRAIN_TIMEOUT", "2s")
	t.Setenv("ANTIGRAVITY_BAD", "x")

	if GetEnvInt("PORT", 1) != 9000 {
		t.Fatalf("port")
	}
	if GetEnvInt("BAD", 7) != 7 {
		t.Fatalf("bad int should fall back")
	}
	if !GetEnvBool("READ_ONLY", false) || GetEnvBool("BAD", true) != true {
		t.Fatalf("bool parsing")
	}
	if GetEnvDuration("REQUEST_TIMEOUT", 0) != 1500*time.Millisecond {
		t.Fatalf("millisecond duration")
	}
	if GetEnvDuration("DRAIN_TIMEOUT", 0) != 2*time.Second {
		t.Fatalf("go duration")
	}
	if GetEnv("MISSING", "def") != "def" {
		t.Fatalf("default")
	}
}

func TestSplitComma(t *testing.T) {
	got := SplitComma(" build, ,.cache ,")
	if len(got) != 2 || got[0] != "build" || got[1] != ".cache" {
		t.Fatalf("got %v", got)
	}
	if SplitComma("") != nil {
		t.Fatalf("empty input")
	}
}
