package validation

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

// imageTypes maps accepted sniffed MIME types to their allowed extensions.
var imageTypes = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/webp": {".webp"},
}

// ValidateImage checks size, sniffed content type and extension of an uploaded image,
// and returns the detected content type. The file is rewound afterwards.
func ValidateImage(file multipart.File, header *multipart.FileHeader, maxSize int64) (string, error) {
	if header.Size > maxSize {
		return "", fmt.Errorf("file too large: maximum size is %d MB", maxSize/(1<<20))
	}

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	_, err = file.Seek(0, io.SeekStart)
	if err != nil {
		return "", fmt.Errorf("failed to reset file pointer: %w", err)
	}

	// Sniffed from content, so a renamed file cannot pass as an image.
	detected := http.DetectContentType(buffer[:n])
	extensions, ok := imageTypes[detected]
	if !ok {
		return "", fmt.Errorf("invalid file type (detected: %s)", detected)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	for _, allowed := range extensions {
		if ext == allowed {
			return detected, nil
		}
	}

	return "", fmt.Errorf("invalid file extension: %s", ext)
}
