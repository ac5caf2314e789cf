package ios

import "fmt"

type connectMessage struct {
	BundleID            string
	ClientVersionString string
	MessageType         string
	ProgName            string
	LibUSBMuxVersion    uint32 `plist:"kLibUSBMuxVersion"`
	DeviceID            uint32
	PortNumber          uint16
}

func newConnectMessage(deviceID int, portNumber uint16) connectMessage {
	return connectMessage{
		BundleID:            bundleID,
		ClientVersionString: clientVersionString,
		MessageType:         "Connect",
		ProgName:            progName,
		LibUSBMuxVersion:    libUSBMuxVersion,
		DeviceID:            uint32(deviceID),
		PortNumber:          Ntohs(portNumber),
	}
}

// Connect asks usbmuxd to tunnel this connection to port on the device. Afterwards the
// connection carries the service protocol, usbmuxd messages must not be sent anymore.
func (muxConn *UsbMuxConnection) Connect(deviceID int, port uint16) error {
	payload, err := muxConn.request(newConnectMessage(deviceID, port))
	if err != nil {
		return err
	}
	if err := MuxResponsefromBytes(payload).Err(); err != nil {
		return fmt.Errorf("failed connecting to port %d: %w", port, err)
	}
	return nil
}

// ConnectLockdown connects this usbmux connection to lockdownd. The UsbMuxConnection is
// unusable afterwards.
func (muxConn *UsbMuxConnection) ConnectLockdown(deviceID int) (*LockDownConnection, error) {
	if err := muxConn.Connect(deviceID, Lockdownport); err != nil {
		return nil, fmt.Errorf("lockdown connection failed: %w", err)
	}
	return NewLockDownConnection(muxConn.ReleaseDeviceConnection()), nil
}

// ConnectLockdownWithoutSession opens a new usbmuxd connection to lockdownd of device.
func ConnectLockdownWithoutSession(device DeviceEntry) (*LockDownConnection, error) {
	muxConnection, err := NewUsbMuxConnectionSimple()
	if err != nil {
		return nil, err
	}
	lockdown, err := muxConnection.ConnectLockdown(device.DeviceID)
	if err != nil {
		muxConnection.Close()
		return nil, err
	}
	return lockdown, nil
}

// ConnectLockdownWithSession connects to lockdownd of device and starts a session with the
// stored pair record. It returns an error wrapping ErrNoPairRecord when the host is not paired.
func ConnectLockdownWithSession(device DeviceEntry) (*LockDownConnection, error) {
	pairRecord, err := ReadPairRecord(device.UDID())
	if err != nil {
		return nil, fmt.Errorf("could not retrieve pair record: %w", err)
	}
	lockdown, err := ConnectLockdownWithoutSession(device)
	if err != nil {
		return nil, err
	}
	if _, err := lockdown.StartSession(pairRecord); err != nil {
		lockdown.Close()
		return nil, fmt.Errorf("StartSession failed: %w", err)
	}
	return lockdown, nil
}
