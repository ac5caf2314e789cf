package ios

import (
	"bytes"
	"fmt"

	plist "howett.net/plist"
)

// MuxResponse is the generic result message of usbmuxd. Number 0 means success.
type MuxResponse struct {
	MessageType string
	Number      uint32
}

// usbmuxd result codes
const (
	muxResultOK         = 0
	muxResultBadCommand = 1
	muxResultBadDevice  = 2
	muxResultRefused    = 3
	muxResultBadVersion = 6
)

// MuxResponsefromBytes parses a MuxResponse, returning the zero value for garbage.
func MuxResponsefromBytes(plistBytes []byte) MuxResponse {
	decoder := plist.NewDecoder(bytes.NewReader(plistBytes))
	var usbMuxResponse MuxResponse
	_ = decoder.Decode(&usbMuxResponse)
	return usbMuxResponse
}

// IsSuccessFull returns true when usbmuxd reported result code 0.
func (u MuxResponse) IsSuccessFull() bool {
	return u.Number == muxResultOK
}

// Err converts a failed response into an error.
func (u MuxResponse) Err() error {
	if u.IsSuccessFull() {
		return nil
	}
	return fmt.Errorf("usbmuxd returned %s (%d)", muxResultName(u.Number), u.Number)
}

func muxResultName(number uint32) string {
	switch number {
	case muxResultBadCommand:
		return "BadCommand"
	case muxResultBadDevice:
		return "BadDevice"
	case muxResultRefused:
		return "ConnectionRefused"
	case muxResultBadVersion:
		return "BadVersion"
	default:
		return "Unknown"
	}
}
