package ios

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// PlistCodec frames lockdown messages as [4 byte big endian length][xml plist].
type PlistCodec struct{}

// NewPlistCodec creates a PlistCodec.
func NewPlistCodec() PlistCodec {
	return PlistCodec{}
}

// Encode serializes message and prefixes it with its length.
func (plistCodec PlistCodec) Encode(message interface{}) ([]byte, error) {
	payload, err := ToPlistBytes(message)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.BigEndian, uint32(len(payload))); err != nil {
		return nil, err
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

// Decode reads the next length prefixed plist from r and returns its raw bytes.
func (plistCodec PlistCodec) Decode(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, errors.New("reader was nil")
	}
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	payload := make([]byte, length)
	n, err := io.ReadFull(r, payload)
	if err != nil {
		return nil, fmt.Errorf("lockdown payload had incorrect size: %d expected: %d: %w", n, length, err)
	}
	return payload, nil
}
