package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestMainFailsOnInvalidConfig(t *testing.T) {
	if os.Getenv("MEDIACONVD_RUN_MAIN") == "1" {
		main()
		return
	}

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(configPath, []byte("[conversion]\nworkers = \"many\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestMainFailsOnInvalidConfig")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"MEDIACONVD_RUN_MAIN=1",
		"MEDIACONV_CONFIG="+configPath,
		"HOME="+dir,
	)
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("expected non-zero exit, output:\n%s", out)
	}
	if _, ok := err.(*exec.ExitError); !ok {
		t.Fatalf("expected exit error, got %v", err)
	}
}
