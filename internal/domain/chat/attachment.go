package chat

import (
	"fmt"
	"strings"
)

// MaxAttachmentBytes is the upload limit for a single attachment.
const MaxAttachmentBytes int64 = 10 * 1024 * 1024

var allowedAttachmentTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/png":       {},
	"application/pdf": {},
}

// Upload is attachment content on its way to storage.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}

// ValidateAttachment checks the size and content type limits for an upload.
func ValidateAttachment(name, contentType string, size int64) error {
	if size > MaxAttachmentBytes {
		return fmt.Errorf("%w: %s is %d bytes", ErrAttachmentTooLarge, name, size)
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if _, ok := allowedAttachmentTypes[ct]; !ok {
		return fmt.Errorf("%w: %q", ErrAttachmentType, contentType)
	}
	return nil
}

// Validate applies ValidateAttachment to u.
func (u Upload) Validate() error {
	return ValidateAttachment(u.Name, u.ContentType, u.Size)
}
