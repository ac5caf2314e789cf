package ios

import (
	"bytes"
	"net"

	log "github.com/sirupsen/logrus"
	plist "howett.net/plist"
)

// Lockdownport is the port of the always running lockdownd on the device.
const Lockdownport uint16 = 62078

const lockdownLabel = "jit_streamer_pair"

// LockDownConnection allows you to interact with the Lockdown service on the device.
// It reads values, changes preferences and pairs the host.
type LockDownConnection struct {
	deviceConnection DeviceConnectionInterface
	sessionID        string
	plistCodec       PlistCodec
}

// NewLockDownConnection creates a LockDownConnection without a session.
func NewLockDownConnection(dev DeviceConnectionInterface) *LockDownConnection {
	return &LockDownConnection{deviceConnection: dev, plistCodec: NewPlistCodec()}
}

// Close stops a running session and closes the connection.
func (lockDownConn *LockDownConnection) Close() error {
	lockDownConn.StopSession()
	return lockDownConn.deviceConnection.Close()
}

// Send converts msg to a plist and writes it with its length prefix.
func (lockDownConn *LockDownConnection) Send(msg interface{}) error {
	bytes, err := lockDownConn.plistCodec.Encode(msg)
	if err != nil {
		return err
	}
	return lockDownConn.deviceConnection.Send(bytes)
}

// ReadMessage returns the next lockdown plist.
func (lockDownConn *LockDownConnection) ReadMessage() ([]byte, error) {
	return lockDownConn.plistCodec.Decode(lockDownConn.deviceConnection.Reader())
}

// Conn returns the underlying connection.
func (lockDownConn *LockDownConnection) Conn() net.Conn {
	return lockDownConn.deviceConnection.Conn()
}

// lockdownResponse holds the fields every lockdown reply carries.
type lockdownResponse struct {
	Request string
	Error   string
}

// roundTrip sends req, decodes the reply into resp and turns a device error into a *LockdownError.
func (lockDownConn *LockDownConnection) roundTrip(request string, req interface{}, resp interface{}) error {
	if err := lockDownConn.Send(req); err != nil {
		return err
	}
	payload, err := lockDownConn.ReadMessage()
	if err != nil {
		return err
	}
	var status lockdownResponse
	if _, err := plist.Unmarshal(payload, &status); err != nil {
		return err
	}
	if status.Error != "" {
		log.WithFields(log.Fields{"request": request, "error": status.Error}).Debug("lockdown returned error")
		return newLockdownError(request, status.Error)
	}
	if resp == nil {
		return nil
	}
	return plist.NewDecoder(bytes.NewReader(payload)).Decode(resp)
}
