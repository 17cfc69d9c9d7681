// Package datauri builds and takes apart base64 data URIs of the form
// data:<mime>;base64,<payload>.
package datauri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var ErrMalformed = errors.New("malformed data URI")

// Encode returns data as a base64 data URI. An empty mimeType is sniffed from the bytes.
func Encode(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = DetectMIME(data, "")
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// ExtractBase64 returns everything after the first comma, or "" when there is none.
func ExtractBase64(uri string) string {
	_, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return ""
	}
	return payload
}

// MIME returns the media type declared in the URI header.
func MIME(uri string) string {
	header, _, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasPrefix(header, "data:") {
		return ""
	}
	header = strings.TrimPrefix(header, "data:")
	mimeType, _, _ := strings.Cut(header, ";")
	return mimeType
}

// Decode validates the URI and returns its media type and decoded payload.
func Decode(uri string) (string, []byte, error) {
	header, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return "", nil, ErrMalformed
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return MIME(uri), data, nil
}

// DetectMIME sniffs the content type from magic bytes, falling back to the file
// extension for formats the sniffer does not know (EMF, WMF).
func DetectMIME(data []byte, name string) string {
	mimeType := mimetype.Detect(data).String()
	if strings.HasPrefix(mimeType, "image/") {
		return mimeType
	}
	if name != "" {
		return MIMEFromExtension(filepath.Ext(name))
	}
	return mimeType
}

func MIMEFromExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".svg":
		return "image/svg+xml"
	case ".emf":
		return "image/x-emf"
	case ".wmf":
		return "image/x-wmf"
	default:
		return "application/octet-stream"
	}
}

// ExtensionFromMIME is the inverse of MIMEFromExtension for the raster formats.
func ExtensionFromMIME(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	default:
		return ".png"
	}
}
