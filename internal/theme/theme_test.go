package theme

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/genricoloni/glowcard/internal/domain"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

type stubConfig struct {
	dir string
}

func (c stubConfig) GetOutputDir() string { return c.dir }

func TestCoverImage(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://x/a.jpg", `url("https://x/a.jpg")`},
		{`https://x/a"b.jpg`, `url("https://x/a\"b.jpg")`},
		{"", `url("")`},
		{`C:\Music\a.jpg`, `url("C:\\Music\\a.jpg")`},
		{`https://x/a\`, `url("https://x/a\\")`},
		{`https://x/a\"); color: red`, `url("https://x/a\\\"); color: red")`},
		{"https://x/a\nb\r\fc.jpg", `url("https://x/a%0Ab%0D%0Cc.jpg")`},
	}
	for _, tt := range tests {
		if got := CoverImage(tt.url); got != tt.want {
			t.Errorf("CoverImage(%q): expected %s, got %s", tt.url, tt.want, got)
		}
	}
}

func TestRender(t *testing.T) {
	vars := Vars{}
	vars.Set(VarCoverImage, CoverImage("https://x/a.jpg"))
	vars.Set(VarAvgColor, "rgba(1, 2, 3, 0.95)")
	vars.Set(VarBrightnessColor, "rgba(255, 255, 255, 0.95)")

	want := ":root {\n" +
		"  --cover-avg-brightness-color: rgba(255, 255, 255, 0.95);\n" +
		"  --cover-avg-color: rgba(1, 2, 3, 0.95);\n" +
		"  --cover-image: url(\"https://x/a.jpg\");\n" +
		"}\n"
	if diff := cmp.Diff(want, Render(vars)); diff != "" {
		t.Errorf("Render mismatch (-want +got):\n%s", diff)
	}

	if got := Render(nil); got != ":root {\n}\n" {
		t.Errorf("empty render: got %q", got)
	}
}

func TestVars_CloneIsIndependent(t *testing.T) {
	vars := Vars{VarAvgColor: "a"}
	clone := vars.Clone()
	clone.Set(VarAvgColor, "b")
	clone.Remove("missing")
	if vars[VarAvgColor] != "a" {
		t.Error("clone shares storage with the original")
	}
}

func TestFileWriter_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	w := NewFileWriter(zap.NewNop(), stubConfig{dir: dir})

	path, err := w.Write(map[string]string{VarAvgColor: "red"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(path) != StylesheetFilename {
		t.Errorf("unexpected path %s", path)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("expected absolute path, got %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read stylesheet: %v", err)
	}
	if string(data) != ":root {\n  --cover-avg-color: red;\n}\n" {
		t.Errorf("unexpected stylesheet %q", data)
	}

	// Publish rewrites with the new theme and leaves no temp files behind
	w.Publish(domain.CardState{Theme: map[string]string{VarAvgColor: "blue"}})
	data, _ = os.ReadFile(path)
	if string(data) != ":root {\n  --cover-avg-color: blue;\n}\n" {
		t.Errorf("stylesheet not updated: %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the stylesheet in the output dir, got %d entries", len(entries))
	}
}

func TestFileWriter_Unchanged(t *testing.T) {
	dir := t.TempDir()
	w := NewFileWriter(zap.NewNop(), stubConfig{dir: dir})

	path, err := w.Write(map[string]string{VarAvgColor: "red"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// an external edit survives an identical publish
	if err := os.WriteFile(path, []byte("edited"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(map[string]string{VarAvgColor: "red"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "edited" {
		t.Errorf("expected unchanged content to skip the write, got %q", data)
	}
}

func TestFileWriter_InvalidDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	w := NewFileWriter(zap.NewNop(), stubConfig{dir: filepath.Join(file, "sub")})
	if _, err := w.Write(map[string]string{}); err == nil {
		t.Error("expected error when the output dir cannot be created")
	}
}
