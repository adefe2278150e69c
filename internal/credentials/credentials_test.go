package credentials

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolve_EnvOnly(t *testing.T) {
	t.Setenv("HF_TOKEN", "tok-123")
	t.Setenv("HUGGINGFACE_HUB_TOKEN", "")
	t.Setenv("KAGGLE_USERNAME", "alice")
	t.Setenv("KAGGLE_KEY", "key-456")
	t.Setenv(stateDirEnv, "")

	s := Resolve()
	if s.HFToken != "tok-123" {
		t.Fatalf("HFToken = %q", s.HFToken)
	}
	if !s.HasKaggle() {
		t.Fatalf("expected HasKaggle true, got %+v", s)
	}
}

func TestResolve_FallsBackToStateDirFile(t *testing.T) {
	t.Setenv("HF_TOKEN", "")
	t.Setenv("HUGGINGFACE_HUB_TOKEN", "")
	t.Setenv("KAGGLE_USERNAME", "")
	t.Setenv("KAGGLE_KEY", "")

	dir := t.TempDir()
	t.Setenv(stateDirEnv, dir)
	content := `{"hfToken":"from-file","kaggleUsername":"bob","kaggleKey":"k2"}`
	if err := os.WriteFile(filepath.Join(dir, secretsFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s := Resolve()
	if s.HFToken != "from-file" {
		t.Fatalf("HFToken = %q", s.HFToken)
	}
	if !s.HasKaggle() || s.KaggleUsername != "bob" {
		t.Fatalf("unexpected kaggle creds: %+v", s)
	}
}

func TestResolve_EnvWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(stateDirEnv, dir)
	content := `{"hfToken":"from-file"}`
	if err := os.WriteFile(filepath.Join(dir, secretsFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HF_TOKEN", "from-env")

	s := Resolve()
	if s.HFToken != "from-env" {
		t.Fatalf("expected env to win, got %q", s.HFToken)
	}
}

func TestResolve_MissingStateDirIsNotAnError(t *testing.T) {
	t.Setenv("HF_TOKEN", "")
	t.Setenv("HUGGINGFACE_HUB_TOKEN", "")
	t.Setenv(stateDirEnv, filepath.Join(t.TempDir(), "does-not-exist"))

	s := Resolve()
	if s.HasHF() {
		t.Fatalf("expected no HF token, got %+v", s)
	}
}
