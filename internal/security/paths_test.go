package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithin(t *testing.T) {
	root := t.TempDir()
	safe := filepath.Join(root, "safe")
	outside := filepath.Join(root, "outside")
	for _, d := range []string{safe, outside} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	link := filepath.Join(safe, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"new file inside", filepath.Join(safe, "plot.png"), false},
		{"nested new file", filepath.Join(safe, "a", "b", "plot.png"), false},
		{"the directory itself", safe, false},
		{"dot dot escape", filepath.Join(safe, "..", "outside", "plot.png"), true},
		{"sibling", filepath.Join(outside, "plot.png"), true},
		{"through symlink", filepath.Join(link, "plot.png"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithin(tt.path, safe)
			if tt.wantErr {
				if !errors.Is(err, ErrOutsideDir) {
					t.Errorf("ValidatePathWithin(%q) = %v, want ErrOutsideDir", tt.path, err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidatePathWithin(%q) unexpected error: %v", tt.path, err)
			}
		})
	}
}

func TestValidatePathWithin_MissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	if err := ValidatePathWithin(filepath.Join(dir, "x"), dir); err == nil {
		t.Error("expected an error for a directory that does not exist")
	}
}

func TestValidateOutputPath(t *testing.T) {
	if err := ValidateOutputPath(filepath.Join(t.TempDir(), "out.png")); err != nil {
		t.Errorf("temp dir path rejected: %v", err)
	}
	if err := ValidateOutputPath("trajectory.png"); err != nil {
		t.Errorf("relative path rejected: %v", err)
	}
	if err := ValidateOutputPath("/proc/tracker-test.png"); !errors.Is(err, ErrOutsideDir) {
		t.Errorf("ValidateOutputPath(/proc/...) = %v, want ErrOutsideDir", err)
	}

	extra := t.TempDir()
	if err := ValidateOutputPath(filepath.Join(extra, "x.png"), extra); err != nil {
		t.Errorf("extra dir rejected: %v", err)
	}
}
