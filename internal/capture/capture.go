// Package capture accepts the photo attached to a report. Any payload is
// accepted as-is; the detected content type is recorded for display only.
package capture

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/civictrack/civictrack-backend/internal/report"
)

// Capturer reads image payloads
type Capturer struct {
	now func() time.Time
}

func New() *Capturer {
	return &Capturer{now: time.Now}
}

// FromBytes wraps data as a captured image
func (c *Capturer) FromBytes(filename string, data []byte) report.Image {
	return report.Image{
		Filename:    filepath.Base(filename),
		ContentType: mimetype.Detect(data).String(),
		Size:        len(data),
		CapturedAt:  c.now().UTC(),
		Data:        data,
	}
}

// FromReader reads r to the end. Only read errors are reported.
func (c *Capturer) FromReader(filename string, r io.Reader) (report.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return report.Image{}, fmt.Errorf("read image: %w", err)
	}
	return c.FromBytes(filename, data), nil
}

// IsImage reports whether the detected type is an image. The wizard does not
// enforce it; the API surfaces it so clients can warn.
func IsImage(img report.Image) bool {
	return strings.HasPrefix(img.ContentType, "image/")
}
