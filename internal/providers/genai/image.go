package genai

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ImageInput is an image travelling to or from the service.
type ImageInput struct {
	Data     []byte
	MimeType string
}

// NewImageInput wraps raw bytes, sniffing the MIME type.
func NewImageInput(data []byte) ImageInput {
	return ImageInput{Data: data, MimeType: mimetype.Detect(data).String()}
}

// ParseDataURL decodes data:<mime>;base64,<payload>. A missing or generic MIME
// type is replaced by the sniffed one.
func ParseDataURL(raw string) (ImageInput, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "data:") {
		return ImageInput{}, errors.New("not a data url")
	}
	header, payload, ok := strings.Cut(raw[len("data:"):], ",")
	if !ok {
		return ImageInput{}, errors.New("data url has no payload")
	}
	if !strings.HasSuffix(header, ";base64") {
		return ImageInput{}, errors.New("data url is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ImageInput{}, fmt.Errorf("decode data url: %w", err)
	}
	if len(data) == 0 {
		return ImageInput{}, errors.New("data url is empty")
	}
	mime := strings.TrimSpace(strings.TrimSuffix(header, ";base64"))
	if mime == "" || mime == "application/octet-stream" {
		mime = mimetype.Detect(data).String()
	}
	return ImageInput{Data: data, MimeType: mime}, nil
}

// DataURL renders the image as a data URL.
func (i ImageInput) DataURL() string {
	return "data:" + i.mime() + ";base64," + i.Base64()
}

// Base64 returns the standard base64 encoding of the bytes.
func (i ImageInput) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// IsPNG reports whether the bytes are a PNG image.
func (i ImageInput) IsPNG() bool {
	return len(i.Data) > 0 && mimetype.Detect(i.Data).Is("image/png")
}

// Extension returns the file extension for the sniffed type, with the dot.
func (i ImageInput) Extension() string {
	if ext := mimetype.Detect(i.Data).Extension(); ext != "" {
		return ext
	}
	return ".png"
}

// Hash is a stable key for the image bytes.
func (i ImageInput) Hash() string {
	sum := sha256.Sum256(i.Data)
	return hex.EncodeToString(sum[:])
}

func (i ImageInput) mime() string {
	if i.MimeType != "" {
		return i.MimeType
	}
	return mimetype.Detect(i.Data).String()
}

func (i ImageInput) part() geminiPart {
	return geminiPart{InlineData: &geminiInlineData{MimeType: i.mime(), Data: i.Base64()}}
}

func decodeInline(in *geminiInlineData) (ImageInput, error) {
	data, err := base64.StdEncoding.DecodeString(in.Data)
	if err != nil {
		return ImageInput{}, fmt.Errorf("decode inline data: %w", err)
	}
	mime := in.MimeType
	if mime == "" {
		mime = mimetype.Detect(data).String()
	}
	return ImageInput{Data: data, MimeType: mime}, nil
}
