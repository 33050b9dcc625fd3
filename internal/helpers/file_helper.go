package helpers

import (
	"bufio"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

type UploadConfig struct {
	MaxSizeBytes     int64
	AllowedMimeTypes []string
}

var DefaultCodeListUploadConfig = UploadConfig{
	MaxSizeBytes: 2 * 1024 * 1024, // 2MB
	AllowedMimeTypes: []string{
		"text/plain; charset=utf-8",
		"text/plain",
		"text/csv",
	},
}

// ReadUploadedLines reads an uploaded text file of stock codes, one per line.
func ReadUploadedLines(fileHeader *multipart.FileHeader, configs ...UploadConfig) ([]string, error) {
	config := DefaultCodeListUploadConfig
	if len(configs) > 0 {
		config = configs[0]
	}

	if fileHeader.Size > config.MaxSizeBytes {
		return nil, fmt.Errorf("file size exceeds maximum limit of %d MB", config.MaxSizeBytes/(1024*1024))
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return ReadLines(src, config)
}

func ReadLines(src io.Reader, config UploadConfig) ([]string, error) {
	reader := bufio.NewReader(io.LimitReader(src, config.MaxSizeBytes))
	head, err := reader.Peek(512)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}
	if len(head) > 0 {
		mimeType := http.DetectContentType(head)
		mimeTypeAllowed := false
		for _, allowedType := range config.AllowedMimeTypes {
			if mimeType == allowedType {
				mimeTypeAllowed = true
				break
			}
		}
		if !mimeTypeAllowed {
			return nil, fmt.Errorf("invalid file type. Allowed types: %v", config.AllowedMimeTypes)
		}
	}

	var lines []string
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
