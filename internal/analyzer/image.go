package analyzer

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ImageRefs builds the image reference handed to the vision model. With a
// BaseURL the model fetches the file itself; otherwise the file is inlined
// as a data URL.
type ImageRefs struct {
	BaseURL string
}

func (r ImageRefs) Resolve(path, filename string) (string, error) {
	if r.BaseURL != "" {
		return strings.TrimRight(r.BaseURL, "/") + "/" + url.PathEscape(filename), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType(path), base64.StdEncoding.EncodeToString(data)), nil
}

func mimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
