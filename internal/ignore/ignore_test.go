package ignore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsAndExtra(t *testing.T) {
	m := New(t.TempDir(), []string{"vendor", "build/gen"})
	cases := map[string]bool{
		"src/main.go":           false,
		".git/config":           true,
		"web/node_modules/x.js": true,
		"dist":                  true,
		"vendor/lib/a.go":       true,
		"build/gen/out.go":      true,
		"build/other.go":        false,
		"distribution/a.txt":    false,
		"":                      false,
	}
	for p, want := range cases {
		if got := m.Match(p); got != want {
			t.Fatalf("Match(%q) = %v want %v", p, got, want)
		}
	}
}

func TestIgnoreFileGlobsAndReload(t *testing.T) {
	root := t.TempDir()
	content := "# generated\n*.log\n\ncoverage/**\n/tmp/\n"
	if err := os.WriteFile(filepath.Join(root, FileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := New(root, nil)
	if !m.Match("logs/run.log") || !m.Match("a.log") {
		t.Fatalf("*.log should match at any depth")
	}
	if !m.Match("coverage/html/index.html") {
		t.Fatalf("coverage/** should match")
	}
	if !m.Match("tmp/x") {
		t.Fatalf("/tmp/ should match as a name")
	}
	if m.Match("src/log.go") {
		t.Fatalf("src/log.go should not match")
	}

	if err := os.WriteFile(filepath.Join(root, FileName), []byte("src\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := m.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if m.Match("a.log") || !m.Match("src/log.go") {
		t.Fatalf("reload did not replace the file entries")
	}
}

func TestIsIgnoreFile(t *testing.T) {
	if !IsIgnoreFile(".antigravityignore") || IsIgnoreFile("sub/.antigravityignore") {
		t.Fatalf("IsIgnoreFile mismatch")
	}
}
