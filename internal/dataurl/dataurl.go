// Package dataurl encodes and decodes base64 data URLs, the canonical
// in-memory form of every uploaded file.
package dataurl

import (
	"encoding/base64"
	"errors"
	"strings"
)

var ErrMalformed = errors.New("malformed data url")

// Encode returns "data:<mime>;base64,<payload>".
func Encode(mimeType string, data []byte) string {
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mimeType) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(mimeType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// Decode splits a base64 data URL into its MIME type and payload.
func Decode(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrMalformed
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrMalformed
	}
	mimeType, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return "", nil, ErrMalformed
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, errors.Join(ErrMalformed, err)
	}
	if mimeType == "" {
		mimeType = "text/plain"
	}
	return mimeType, data, nil
}
