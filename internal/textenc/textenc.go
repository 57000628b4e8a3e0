// Package textenc converts text to and from the legacy byte encodings the
// upstream chart site expects.
package textenc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// ErrUnknownEncoding is returned by Lookup for labels x/text does not know.
var ErrUnknownEncoding = errors.New("unknown text encoding")

// DefaultLabel is the encoding the chart site uses for form fields and pages.
const DefaultLabel = "gb2312"

// Encoder turns text into the bytes that go on the wire.
type Encoder func(s string) ([]byte, error)

// Decoder turns wire bytes back into UTF-8 text.
type Decoder func(b []byte) (string, error)

// GB2312 encodes s as GB2312. The GBK codec is used because GB2312 is a
// strict subset and both produce identical bytes for GB2312 characters.
func GB2312(s string) ([]byte, error) {
	return encode(simplifiedchinese.GBK, s)
}

// UTF8 passes text through unchanged.
func UTF8(s string) ([]byte, error) {
	return []byte(s), nil
}

// DecodeGB2312 decodes GB2312/GBK bytes to UTF-8.
func DecodeGB2312(b []byte) (string, error) {
	return decode(simplifiedchinese.GBK, b)
}

// Lookup resolves a WHATWG label ("gb2312", "gbk", "utf-8", ...) to an
// encoder/decoder pair.
func Lookup(label string) (Encoder, Decoder, error) {
	label = strings.TrimSpace(strings.ToLower(label))
	if label == "" {
		label = DefaultLabel
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, label)
	}
	return func(s string) ([]byte, error) { return encode(enc, s) },
		func(b []byte) (string, error) { return decode(enc, b) },
		nil
}

// DecodeHTML decodes an HTML body to UTF-8. A BOM or a Content-Type charset
// wins; otherwise fallbackLabel is used, and with no fallback the document's
// meta tags are sniffed.
func DecodeHTML(body []byte, contentType, fallbackLabel string) (string, error) {
	if _, name, certain := charset.DetermineEncoding(body, contentType); !certain || name == "" {
		if fallbackLabel != "" {
			_, dec, err := Lookup(fallbackLabel)
			if err != nil {
				return "", err
			}
			return dec(body)
		}
	}

	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", fmt.Errorf("charset reader: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode html: %w", err)
	}
	return string(out), nil
}

func encode(e encoding.Encoding, s string) ([]byte, error) {
	b, err := e.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", s, err)
	}
	return b, nil
}

func decode(e encoding.Encoding, b []byte) (string, error) {
	out, err := e.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	return string(out), nil
}
