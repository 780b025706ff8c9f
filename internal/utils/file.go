package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has an image extension
func IsImageFile(filename string) bool {
	ext := GetFileExtension(filename)
	imageExts := []string{"jpg", "jpeg", "png", "gif", "bmp", "tiff", "webp"}

	for _, imgExt := range imageExts {
		if ext == imgExt {
			return true
		}
	}
	return false
}

// OutputFilename builds a result filename from the input name, a suffix
// describing the artifact (detections overlay, crop grid) and a format.
func OutputFilename(inputFile, outputDir, suffix, format string) string {
	baseName := filepath.Base(inputFile)
	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))

	if format == "" {
		format = GetFileExtension(inputFile)
		if format == "" {
			format = "jpg"
		}
	}

	outputName := fmt.Sprintf("%s_%s.%s", nameWithoutExt, suffix, format)
	return filepath.Join(outputDir, outputName)
}

// ListImageFiles recursively lists all image files in a directory
func ListImageFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && IsImageFile(path) {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}
