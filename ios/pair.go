package ios

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// FullPairRecordData is the part of the pair record sent to the device with a Pair request.
type FullPairRecordData struct {
	DeviceCertificate []byte
	HostCertificate   []byte
	RootCertificate   []byte
	SystemBUID        string
	HostID            string
}

// PairingOptions asks the device for detailed pairing errors.
type PairingOptions struct {
	ExtendedPairingErrors bool
}

// LockDownPairRequest is the lockdown Pair request.
type LockDownPairRequest struct {
	Label           string
	PairRecord      FullPairRecordData
	Request         string
	ProtocolVersion string
	PairingOptions  PairingOptions
}

// LockdownPairResponse is the device reply to a Pair request.
type LockdownPairResponse struct {
	Request   string
	EscrowBag []byte
}

func newLockDownPairRequest(pairRecord FullPairRecordData) LockDownPairRequest {
	return LockDownPairRequest{
		Label:           lockdownLabel,
		PairRecord:      pairRecord,
		Request:         "Pair",
		ProtocolVersion: "2",
		PairingOptions:  PairingOptions{ExtendedPairingErrors: true},
	}
}

func newHostID() string {
	return strings.ToUpper(uuid.New().String())
}

// Pair creates a new pair record for device, lets the device trust it and stores it in usbmuxd.
// The device shows a trust dialog, until it is accepted Pair fails with
// ErrPairingDialogResponsePending and has to be repeated.
func Pair(device DeviceEntry) error {
	muxConn, err := NewUsbMuxConnectionSimple()
	if err != nil {
		return err
	}
	buid, err := muxConn.ReadBuid()
	muxConn.Close()
	if err != nil {
		return err
	}

	lockdown, err := ConnectLockdownWithoutSession(device)
	if err != nil {
		return err
	}
	defer lockdown.Close()
	record, err := lockdown.Pair(buid, newHostID())
	if err != nil {
		return err
	}

	muxConn, err = NewUsbMuxConnectionSimple()
	if err != nil {
		return err
	}
	defer muxConn.Close()
	return muxConn.SavePair(device.UDID(), record)
}

// Pair sends a Pair request with freshly generated certificates and returns the complete record.
func (lockDownConn *LockDownConnection) Pair(systemBUID string, hostID string) (PairRecord, error) {
	publicKey, err := lockDownConn.GetValue("DevicePublicKey")
	if err != nil {
		return PairRecord{}, fmt.Errorf("failed reading DevicePublicKey: %w", err)
	}
	publicKeyBytes, ok := publicKey.([]byte)
	if !ok {
		return PairRecord{}, fmt.Errorf("DevicePublicKey has unexpected type %T", publicKey)
	}
	wifiMac, err := lockDownConn.GetValue("WiFiAddress")
	if err != nil {
		return PairRecord{}, fmt.Errorf("failed reading WiFiAddress: %w", err)
	}
	wifiMacString, _ := wifiMac.(string)

	certs, err := createPairingCertificates(publicKeyBytes)
	if err != nil {
		return PairRecord{}, fmt.Errorf("failed creating pair record: %w", err)
	}
	request := newLockDownPairRequest(FullPairRecordData{
		DeviceCertificate: certs.DeviceCertificate,
		HostCertificate:   certs.HostCertificate,
		RootCertificate:   certs.RootCertificate,
		SystemBUID:        systemBUID,
		HostID:            hostID,
	})
	var response LockdownPairResponse
	if err := lockDownConn.roundTrip("Pair", request, &response); err != nil {
		return PairRecord{}, err
	}
	log.WithFields(log.Fields{"hostID": hostID, "wifiMac": wifiMacString}).Debug("device accepted pair request")

	return PairRecord{
		HostID:            hostID,
		SystemBUID:        systemBUID,
		HostCertificate:   certs.HostCertificate,
		HostPrivateKey:    certs.HostPrivateKey,
		DeviceCertificate: certs.DeviceCertificate,
		EscrowBag:         response.EscrowBag,
		WiFiMACAddress:    wifiMacString,
		RootCertificate:   certs.RootCertificate,
		RootPrivateKey:    certs.RootPrivateKey,
	}, nil
}
