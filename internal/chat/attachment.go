package chat

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"
)

// MaxAttachmentSize caps the files ReadAttachment inlines.
const MaxAttachmentSize = 4 << 20

var textMIMETypes = []string{"application/json", "application/javascript", "application/xml"}

// ReadAttachment loads the file at path. Images are base64 encoded, text
// files are read as-is; any other type gets an empty Data so the request
// carries a "could not be read" note instead of the content.
func ReadAttachment(path string) (*Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if len(data) > MaxAttachmentSize {
		return nil, fmt.Errorf("attachment %s is %d bytes, limit is %d", filepath.Base(path), len(data), MaxAttachmentSize)
	}

	name := filepath.Base(path)
	att := &Attachment{Name: name, MIMEType: detectMIME(name, data)}
	switch {
	case att.IsImage():
		att.Data = base64.StdEncoding.EncodeToString(data)
	case isText(att.MIMEType, name) && utf8.Valid(data):
		att.Data = string(data)
	}
	return att, nil
}

func detectMIME(name string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		if base, _, err := mime.ParseMediaType(t); err == nil {
			return base
		}
		return t
	}
	base, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return base
}

func isText(mimeType, name string) bool {
	if strings.HasPrefix(mimeType, "text/") || slices.Contains(textMIMETypes, mimeType) {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".md" || ext == ".csv"
}
