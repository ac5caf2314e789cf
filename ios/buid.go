package ios

import (
	"bytes"
	"errors"
	"fmt"

	plist "howett.net/plist"
)

type readBuid struct {
	BundleID            string
	ClientVersionString string
	MessageType         string
	ProgName            string
	LibUSBMuxVersion    uint32 `plist:"kLibUSBMuxVersion"`
}

type readBuidResponse struct {
	BUID string
}

func newReadBuid() readBuid {
	return readBuid{
		BundleID:            bundleID,
		ClientVersionString: clientVersionString,
		MessageType:         "ReadBUID",
		ProgName:            progName,
		LibUSBMuxVersion:    libUSBMuxVersion,
	}
}

// ReadBuid requests the system BUID of this host from usbmuxd.
func (muxConn *UsbMuxConnection) ReadBuid() (string, error) {
	payload, err := muxConn.request(newReadBuid())
	if err != nil {
		return "", fmt.Errorf("failed reading BUID: %w", err)
	}
	var resp readBuidResponse
	if err := plist.NewDecoder(bytes.NewReader(payload)).Decode(&resp); err != nil {
		return "", fmt.Errorf("failed decoding BUID response: %w", err)
	}
	if resp.BUID == "" {
		return "", errors.New("usbmuxd returned an empty BUID")
	}
	return resp.BUID, nil
}
