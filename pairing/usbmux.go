package pairing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jkcoxson/jitstreamer-pair/ios"
	log "github.com/sirupsen/logrus"
)

// USBMux is the DeviceSource backed by the local usbmuxd.
type USBMux struct{}

// ListDevices lists all devices usbmuxd knows, USB and network attached.
func (USBMux) ListDevices(ctx context.Context) ([]Device, error) {
	list, err := ios.ListDevices()
	if err != nil {
		return nil, err
	}
	devices := make([]Device, len(list.DeviceList))
	for i, entry := range list.DeviceList {
		devices[i] = Device{UDID: entry.UDID(), DeviceID: entry.DeviceID, Network: entry.IsNetwork()}
	}
	return devices, nil
}

// ReadPairRecord returns the stored pair record of udid.
func (USBMux) ReadPairRecord(ctx context.Context, udid string) (map[string]interface{}, error) {
	return ios.ReadPairRecordPlist(udid)
}

// ConnectLockdown opens a lockdown session, pairing first when this host is not trusted yet.
func (USBMux) ConnectLockdown(ctx context.Context, device Device) (Lockdown, error) {
	entry := ios.DeviceEntry{DeviceID: device.DeviceID, Properties: ios.DeviceProperties{SerialNumber: device.UDID}}
	conn, err := ios.ConnectLockdownWithSession(entry)
	if errors.Is(err, ios.ErrNoPairRecord) || errors.Is(err, ios.ErrInvalidHostID) {
		log.WithFields(log.Fields{"udid": device.UDID, "err": err}).Info("host not trusted, pairing")
		if err := ios.Pair(entry); err != nil {
			return nil, err
		}
		conn, err = ios.ConnectLockdownWithSession(entry)
	}
	if err != nil {
		return nil, err
	}
	return &usbLockdown{conn: conn, device: entry}, nil
}

type usbLockdown struct {
	conn   *ios.LockDownConnection
	device ios.DeviceEntry
}

// EnableWirelessDebugging maps the lockdown unknown error to ErrNoPasscode. lockdownd has no
// dedicated error for a missing passcode, the unknown error is what shows up in that case.
func (l *usbLockdown) EnableWirelessDebugging() error {
	err := l.conn.EnableWirelessDebugging()
	if errors.Is(err, ios.ErrUnknown) {
		return fmt.Errorf("%w: %v", ErrNoPasscode, err)
	}
	return err
}

func (l *usbLockdown) Pair() error {
	return ios.Pair(l.device)
}

func (l *usbLockdown) Close() error {
	return l.conn.Close()
}
