package transcribe

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var ErrInvalidBase64 = errors.New("invalid base64 encoding")

const previewRunes = 50

// Base64Error reports a payload that could not be decoded.
type Base64Error struct {
	// Preview holds the first characters of the repadded input.
	Preview string
	Err     error
}

func (e *Base64Error) Error() string {
	return fmt.Sprintf("%v: %v", ErrInvalidBase64, e.Err)
}

func (e *Base64Error) Unwrap() []error { return []error{ErrInvalidBase64, e.Err} }

// Detail is the message returned to the client.
func (e *Base64Error) Detail() string {
	return fmt.Sprintf("Invalid base64 encoding: %v\nFirst 50 chars of input: %s...", e.Err, e.Preview)
}

var lineBreaks = strings.NewReplacer("\r", "", "\n", "")

// Repad trims surrounding whitespace and line breaks, then appends "=" until
// the length is a multiple of four.
func Repad(encoded string) string {
	trimmed := lineBreaks.Replace(strings.TrimSpace(encoded))
	if rem := len(trimmed) % 4; rem != 0 {
		trimmed += strings.Repeat("=", 4-rem)
	}
	return trimmed
}

// DecodeBase64 decodes standard base64, accepting input with missing padding.
func DecodeBase64(encoded string) ([]byte, error) {
	repadded := Repad(encoded)
	data, err := base64.StdEncoding.DecodeString(repadded)
	if err != nil {
		return nil, &Base64Error{Preview: preview(repadded), Err: err}
	}
	return data, nil
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:previewRunes])
}
