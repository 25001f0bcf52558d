package kv

import (
	"bytes"
	"fmt"
	"strings"
)

// Key is a tuple key. Tuples sort part by part, so ["coins", "u1"] sorts before ["coins", "u2"]
// and every key sharing a prefix tuple is contiguous.
type Key []string

const (
	escapeByte     = 0x00
	escapedZero    = 0xFF
	partTerminator = 0x01
)

// NewKey builds a key from its parts
func NewKey(parts ...string) Key {
	return Key(parts)
}

// Append returns a new key with extra parts; the receiver is not modified
func (k Key) Append(parts ...string) Key {
	out := make(Key, 0, len(k)+len(parts))
	out = append(out, k...)
	return append(out, parts...)
}

// String renders the key for logs
func (k Key) String() string {
	return "[" + strings.Join(k, ", ") + "]"
}

// Encode returns the order-preserving byte form of the key.
// Inside a part 0x00 becomes 0x00 0xFF; every part ends with 0x00 0x01.
func (k Key) Encode() []byte {
	var buf bytes.Buffer
	for _, part := range k {
		for i := 0; i < len(part); i++ {
			b := part[i]
			if b == escapeByte {
				buf.WriteByte(escapeByte)
				buf.WriteByte(escapedZero)
				continue
			}
			buf.WriteByte(b)
		}
		buf.WriteByte(escapeByte)
		buf.WriteByte(partTerminator)
	}
	return buf.Bytes()
}

// DecodeKey is the inverse of Key.Encode
func DecodeKey(raw []byte) (Key, error) {
	key := Key{}
	var part []byte
	for i := 0; i < len(raw); i++ {
		b := raw[i]
		if b != escapeByte {
			part = append(part, b)
			continue
		}
		if i+1 >= len(raw) {
			return nil, fmt.Errorf("kv: truncated key %q", raw)
		}
		i++
		switch raw[i] {
		case escapedZero:
			part = append(part, escapeByte)
		case partTerminator:
			key = append(key, string(part))
			part = nil
		default:
			return nil, fmt.Errorf("kv: invalid escape 0x%02x in key %q", raw[i], raw)
		}
	}
	if part != nil {
		return nil, fmt.Errorf("kv: unterminated part in key %q", raw)
	}
	return key, nil
}

// PrefixRange returns the [start, limit) byte range covering every strict descendant of prefix.
// The smallest descendant is prefix + 0x00 0x01, so start = prefix + 0x00 skips the prefix key
// itself. The encoded prefix ends with 0x00 0x01; bumping that byte gives the first key past the
// subtree. An empty prefix has no limit.
func PrefixRange(prefix Key) (start, limit []byte) {
	encoded := prefix.Encode()
	start = append(append([]byte{}, encoded...), escapeByte)
	if len(encoded) == 0 {
		return start, nil
	}
	limit = append([]byte{}, encoded...)
	limit[len(limit)-1]++
	return start, limit
}

// HasPrefix reports whether key is a strict descendant of prefix
func (k Key) HasPrefix(prefix Key) bool {
	if len(k) <= len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
