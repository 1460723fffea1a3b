package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "8080")
	if v, err := Port("TEST_PORT", "1"); err != nil || v != "8080" {
		t.Fatalf("got %q, %v", v, err)
	}
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "1"); err == nil {
		t.Fatalf("expected error for out of range port")
	}
}

func TestIntAndDuration(t *testing.T) {
	t.Setenv("TEST_INT", "")
	if v, err := Int("TEST_INT", 7); err != nil || v != 7 {
		t.Fatalf("fallback: got %d, %v", v, err)
	}
	t.Setenv("TEST_INT", "abc")
	if _, err := Int("TEST_INT", 7); err == nil {
		t.Fatalf("expected error")
	}

	t.Setenv("TEST_DUR", "15m")
	if d, err := Duration("TEST_DUR", time.Second); err != nil || d != 15*time.Minute {
		t.Fatalf("got %v, %v", d, err)
	}
	t.Setenv("TEST_DUR", "soon")
	if _, err := Duration("TEST_DUR", time.Second); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBoolAndList(t *testing.T) {
	t.Setenv("TEST_BOOL", "yes")
	if !Bool("TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("TEST_BOOL", "maybe")
	if Bool("TEST_BOOL", false) {
		t.Fatalf("expected fallback false")
	}

	t.Setenv("TEST_LIST", " a, ,b ,c")
	got := List("TEST_LIST")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected list: %#v", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("BOOKWELL_DOTENV_KEY=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOOKWELL_DOTENV_KEY", "")
	os.Unsetenv("BOOKWELL_DOTENV_KEY")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("BOOKWELL_DOTENV_KEY"); got != "from-file" {
		t.Fatalf("got %q", got)
	}
}
