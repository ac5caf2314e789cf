package ios

import (
	"bytes"
	"errors"
	"fmt"

	plist "howett.net/plist"
)

// ErrNoPairRecord is returned when usbmuxd has no pair record stored for a udid.
var ErrNoPairRecord = errors.New("no pair record stored for device")

// ReadPair is the ReadPairRecord request for usbmuxd.
type ReadPair struct {
	BundleID            string
	ClientVersionString string
	MessageType         string
	ProgName            string
	LibUSBMuxVersion    uint32 `plist:"kLibUSBMuxVersion"`
	PairRecordID        string
}

func newReadPair(udid string) ReadPair {
	return ReadPair{
		BundleID:            bundleID,
		ClientVersionString: clientVersionString,
		MessageType:         "ReadPairRecord",
		ProgName:            progName,
		LibUSBMuxVersion:    libUSBMuxVersion,
		PairRecordID:        udid,
	}
}

// PairRecordData holds the serialized pair record plist usbmuxd sends back.
type PairRecordData struct {
	PairRecordData []byte
}

// PairRecord holds the host identity and certificates the device trusts.
// It is needed for enabling SSL on lockdown connections.
type PairRecord struct {
	HostID            string
	SystemBUID        string
	HostCertificate   []byte
	HostPrivateKey    []byte
	DeviceCertificate []byte
	EscrowBag         []byte
	WiFiMACAddress    string
	RootCertificate   []byte
	RootPrivateKey    []byte
}

func pairRecordDatafromBytes(plistBytes []byte) ([]byte, error) {
	decoder := plist.NewDecoder(bytes.NewReader(plistBytes))
	var data PairRecordData
	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed decoding ReadPairRecord response: %w", err)
	}
	if data.PairRecordData == nil {
		resp := MuxResponsefromBytes(plistBytes)
		return nil, fmt.Errorf("ReadPairRecord failed with errorcode '%d': %w", resp.Number, ErrNoPairRecord)
	}
	return data.PairRecordData, nil
}

// PairRecordfromBytes parses a serialized pair record.
func PairRecordfromBytes(plistBytes []byte) (PairRecord, error) {
	decoder := plist.NewDecoder(bytes.NewReader(plistBytes))
	var data PairRecord
	if err := decoder.Decode(&data); err != nil {
		return PairRecord{}, fmt.Errorf("failed decoding pair record: %w", err)
	}
	return data, nil
}

// ReadPairRaw returns the serialized pair record for udid exactly as usbmuxd stores it.
func (muxConn *UsbMuxConnection) ReadPairRaw(udid string) ([]byte, error) {
	payload, err := muxConn.request(newReadPair(udid))
	if err != nil {
		return nil, fmt.Errorf("error reading pair record: %w", err)
	}
	return pairRecordDatafromBytes(payload)
}

// ReadPair reads and parses the PairRecord for udid.
func (muxConn *UsbMuxConnection) ReadPair(udid string) (PairRecord, error) {
	raw, err := muxConn.ReadPairRaw(udid)
	if err != nil {
		return PairRecord{}, err
	}
	return PairRecordfromBytes(raw)
}

// ReadPairRecord opens a usbmuxd connection just to read the pair record of udid.
func ReadPairRecord(udid string) (PairRecord, error) {
	muxConnection, err := NewUsbMuxConnectionSimple()
	if err != nil {
		return PairRecord{}, err
	}
	defer muxConnection.Close()
	return muxConnection.ReadPair(udid)
}

// ReadPairRecordPlist returns the pair record of udid as a generic dictionary, keeping every
// key usbmuxd stored, including ones PairRecord does not know about.
func ReadPairRecordPlist(udid string) (map[string]interface{}, error) {
	muxConnection, err := NewUsbMuxConnectionSimple()
	if err != nil {
		return nil, err
	}
	defer muxConnection.Close()
	raw, err := muxConnection.ReadPairRaw(udid)
	if err != nil {
		return nil, err
	}
	record, err := ParsePlist(raw)
	if err != nil {
		return nil, fmt.Errorf("failed decoding pair record: %w", err)
	}
	return record, nil
}
