package model

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/raysh454/paipan/internal/textenc"
)

// Value is a form value: either text, which is run through an encoder before
// it goes on the wire, or an integer, which never is.
type Value struct {
	text   string
	num    int
	isText bool
}

// Text returns a text value.
func Text(s string) Value { return Value{text: s, isText: true} }

// Int returns a numeric value.
func Int(n int) Value { return Value{num: n} }

// IsText reports whether v needs encoding.
func (v Value) IsText() bool { return v.isText }

// String returns the value as it reads in UTF-8.
func (v Value) String() string {
	if v.isText {
		return v.text
	}
	return strconv.Itoa(v.num)
}

// Bytes renders the value for the wire. Text goes through enc; a nil enc
// leaves it as UTF-8.
func (v Value) Bytes(enc textenc.Encoder) ([]byte, error) {
	if !v.isText {
		return []byte(strconv.Itoa(v.num)), nil
	}
	if enc == nil {
		return []byte(v.text), nil
	}
	return enc(v.text)
}

// Field is one named form entry.
type Field struct {
	Name  string
	Value Value
}

// TextField and IntField are shorthands for building payloads.
func TextField(name, s string) Field { return Field{Name: name, Value: Text(s)} }
func IntField(name string, n int) Field { return Field{Name: name, Value: Int(n)} }

// Payload is an ordered, immutable set of form fields. Order is kept on the
// wire so two encodings of the same payload are byte-identical.
type Payload struct {
	fields []Field
}

// NewPayload copies fields into a new Payload.
func NewPayload(fields ...Field) Payload {
	cp := make([]Field, len(fields))
	copy(cp, fields)
	return Payload{fields: cp}
}

// Fields returns a copy of the payload's fields.
func (p Payload) Fields() []Field {
	cp := make([]Field, len(p.fields))
	copy(cp, p.fields)
	return cp
}

// Len returns the number of fields.
func (p Payload) Len() int { return len(p.fields) }

// Get returns the first value named name.
func (p Payload) Get(name string) (Value, bool) {
	for _, f := range p.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Encode renders the payload as application/x-www-form-urlencoded. Text
// values are converted with enc first and the resulting bytes are
// percent-escaped, so GB2312 text becomes e.g. %C4%B3%C8%CB.
func (p Payload) Encode(enc textenc.Encoder) ([]byte, error) {
	var b strings.Builder
	for i, f := range p.fields {
		raw, err := f.Value.Bytes(enc)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(f.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(string(raw)))
	}
	return []byte(b.String()), nil
}
