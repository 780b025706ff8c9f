package utils

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
)

func TestGetFileExtension(t *testing.T) {
	cases := map[string]string{
		"photo.JPG":      "jpg",
		"scan.jpeg":      "jpeg",
		"dir/image.webp": "webp",
		"noext":          "",
	}
	for in, want := range cases {
		if got := GetFileExtension(in); got != want {
			t.Errorf("GetFileExtension(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestIsImageFile(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.PNG", "c.webp", "d.tiff"} {
		if !IsImageFile(name) {
			t.Errorf("expected %s to be an image file", name)
		}
	}
	for _, name := range []string{"a.txt", "b.onnx", "c", "d.json"} {
		if IsImageFile(name) {
			t.Errorf("expected %s not to be an image file", name)
		}
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := EnsureDir(sub); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}

	for _, name := range []string{"a.jpg", "b.txt", "nested/c.png", "nested/d.onnx"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	files, err := ListImageFiles(dir)
	if err != nil {
		t.Fatalf("ListImageFiles failed: %v", err)
	}
	sort.Strings(files)

	want := []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "nested", "c.png"),
	}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("expected %v, got %v", want, files)
	}
}

func TestOutputFilename(t *testing.T) {
	got := OutputFilename("/data/photos/scene.jpg", "out", "detections", "png")
	want := filepath.Join("out", "scene_detections.png")
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	// Empty format falls back to the input's extension
	got = OutputFilename("scene.webp", "out", "crops", "")
	want = filepath.Join("out", "scene_crops.webp")
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
