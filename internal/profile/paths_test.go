package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".gsm", "profiles", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestHomeOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(HomeEnv, tmpDir)
	if got := Dir("work"); got != filepath.Join(tmpDir, "profiles", "work") {
		t.Errorf("Dir(work) = %q, want under %s", got, tmpDir)
	}
}

func TestSocketPath(t *testing.T) {
	got := SocketPath("test")
	if !strings.HasSuffix(got, filepath.Join("profiles", "test", "gsmd.sock")) {
		t.Errorf("SocketPath(test) = %q, want suffix profiles/test/gsmd.sock", got)
	}
}

func TestLogPath(t *testing.T) {
	got := LogPath("test", "gsmtui")
	if !strings.HasSuffix(got, filepath.Join("profiles", "test", "logs", "gsmtui.log")) {
		t.Errorf("LogPath(test, gsmtui) = %q", got)
	}
}

func TestEnsureDirAndList(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	for _, name := range []string{"main", "work"} {
		if err := EnsureDir(name); err != nil {
			t.Fatalf("EnsureDir(%s) error = %v", name, err)
		}
	}
	info, err := os.Stat(LogDir("main"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if info.Mode().Perm() != 0700 {
		t.Errorf("log dir perm = %o, want 0700", info.Mode().Perm())
	}

	names, err := List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 2 || names[0] != "main" || names[1] != "work" {
		t.Errorf("List() = %v, want [main work]", names)
	}
}

func TestListMissingBase(t *testing.T) {
	t.Setenv(HomeEnv, filepath.Join(t.TempDir(), "nope"))
	names, err := List()
	if err != nil || names != nil {
		t.Errorf("List() = %v, %v; want nil, nil", names, err)
	}
}
