package dom

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// DefaultName and DefaultType fill in missing payload metadata.
const (
	DefaultName = "pasted-image.png"
	DefaultType = "image/png"
)

// Payload is an in-memory image file on its way into an upload control.
// It is consumed by a single injection and not retained.
type Payload struct {
	Name         string
	Type         string
	Data         []byte
	LastModified time.Time
}

// NewPayload builds a validated Payload. An empty mime is sniffed from data
// and falls back to DefaultType; any other non-image mime is rejected with
// ErrInvalidPayload.
func NewPayload(name, mime string, data []byte) (*Payload, error) {
	mime = strings.TrimSpace(mime)
	if mime == "" {
		mime = sniffImageType(data)
	}
	if name == "" {
		name = DefaultName
	}
	p := &Payload{Name: name, Type: mime, Data: data, LastModified: time.Now()}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the image MIME invariant.
func (p *Payload) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}
	if !IsImageType(p.Type) {
		return fmt.Errorf("%w: type %q", ErrInvalidPayload, p.Type)
	}
	return nil
}

// Size returns the payload length in bytes.
func (p *Payload) Size() int { return len(p.Data) }

// Digest returns the hex blake2b-256 of the payload bytes.
func (p *Payload) Digest() string {
	sum := blake2b.Sum256(p.Data)
	return hex.EncodeToString(sum[:])
}

// IsImageType reports whether a MIME type denotes an image.
func IsImageType(mime string) bool {
	return strings.HasPrefix(strings.ToLower(mime), "image/")
}

func sniffImageType(data []byte) string {
	if len(data) == 0 {
		return DefaultType
	}
	t := http.DetectContentType(data)
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	if IsImageType(t) {
		return t
	}
	return DefaultType
}
