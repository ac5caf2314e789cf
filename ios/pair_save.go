package ios

import "fmt"

// SavePair is the SavePairRecord request for usbmuxd.
type SavePair struct {
	BundleID            string
	ClientVersionString string
	MessageType         string
	ProgName            string
	LibUSBMuxVersion    uint32 `plist:"kLibUSBMuxVersion"`
	PairRecordID        string
	PairRecordData      []byte
}

func newSavePair(udid string, pairRecordData []byte) SavePair {
	return SavePair{
		BundleID:            bundleID,
		ClientVersionString: clientVersionString,
		MessageType:         "SavePairRecord",
		ProgName:            progName,
		LibUSBMuxVersion:    libUSBMuxVersion,
		PairRecordID:        udid,
		PairRecordData:      pairRecordData,
	}
}

// SavePair stores record in usbmuxd under udid, so later ReadPair calls return it.
func (muxConn *UsbMuxConnection) SavePair(udid string, record PairRecord) error {
	data, err := ToPlistBytes(record)
	if err != nil {
		return err
	}
	payload, err := muxConn.request(newSavePair(udid, data))
	if err != nil {
		return fmt.Errorf("failed saving pair record: %w", err)
	}
	if err := MuxResponsefromBytes(payload).Err(); err != nil {
		return fmt.Errorf("saving the pair record to usbmuxd failed: %w", err)
	}
	return nil
}
