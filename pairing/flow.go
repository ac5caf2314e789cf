// Package pairing walks a user through handing a device pair record to a JitStreamer server.
//
// The flow is a small state machine:
//
//	AwaitUsbDevice -> AwaitCode -> TryExistingRecord -> UploadRecord -> Done
//	                                      |                  |
//	                                      v                  v
//	                               RegenerateRecord <--------+
//
// RegenerateRecord enables wireless debugging, pairs the device again and goes back to
// TryExistingRecord to pick up the new record.
package pairing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jkcoxson/jitstreamer-pair/jitstreamer"
	log "github.com/sirupsen/logrus"
	plist "howett.net/plist"
)

// ErrNoPasscode means the device refused wireless debugging because it has no passcode.
var ErrNoPasscode = errors.New("device has no passcode set")

// Device is an attached device.
type Device struct {
	UDID     string
	DeviceID int
	Network  bool
}

// Lockdown is an open lockdown client of one device.
type Lockdown interface {
	EnableWirelessDebugging() error
	Pair() error
	Close() error
}

// DeviceSource enumerates devices and gives access to their pair records and lockdown.
type DeviceSource interface {
	ListDevices(ctx context.Context) ([]Device, error)
	ReadPairRecord(ctx context.Context, udid string) (map[string]interface{}, error)
	ConnectLockdown(ctx context.Context, device Device) (Lockdown, error)
}

// Uploader hands a serialized pair record to the server.
type Uploader interface {
	Upload(ctx context.Context, code string, record []byte) (jitstreamer.Response, error)
}

// State is a step of the flow.
type State int

const (
	AwaitUsbDevice State = iota
	AwaitCode
	TryExistingRecord
	RegenerateRecord
	UploadRecord
	Done
)

func (s State) String() string {
	switch s {
	case AwaitUsbDevice:
		return "AwaitUsbDevice"
	case AwaitCode:
		return "AwaitCode"
	case TryExistingRecord:
		return "TryExistingRecord"
	case RegenerateRecord:
		return "RegenerateRecord"
	case UploadRecord:
		return "UploadRecord"
	case Done:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome tells how a finished flow ended.
type Outcome int

const (
	// Paired means the server accepted the pair record.
	Paired Outcome = iota + 1
	// PasscodeRequired means the device needs a passcode before it can be paired.
	PasscodeRequired
)

// session is the state carried from step to step.
type session struct {
	state   State
	device  Device
	code    string
	record  []byte
	outcome Outcome
}

// Flow runs the pairing dialog.
type Flow struct {
	Devices  DeviceSource
	Uploader Uploader
	Console  *Console
	// UDID pins the device to pair, empty picks the first USB device.
	UDID string
}

// Run drives the flow until the server accepted a record or the device needs a passcode.
// It only returns an error when the console is closed or ctx is done, also while waiting
// for input.
func (f *Flow) Run(ctx context.Context) (Outcome, error) {
	s := &session{state: AwaitUsbDevice}
	for s.state != Done {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		log.WithField("state", s.state).Debug("pairing step")
		if err := f.step(ctx, s); err != nil {
			return 0, err
		}
	}
	return s.outcome, nil
}

func (f *Flow) step(ctx context.Context, s *session) error {
	switch s.state {
	case AwaitUsbDevice:
		return f.awaitUsbDevice(ctx, s)
	case AwaitCode:
		return f.awaitCode(ctx, s)
	case TryExistingRecord:
		f.tryExistingRecord(ctx, s)
		return nil
	case UploadRecord:
		return f.uploadRecord(ctx, s)
	case RegenerateRecord:
		return f.regenerateRecord(ctx, s)
	default:
		return fmt.Errorf("unexpected state %s", s.state)
	}
}

func (f *Flow) awaitUsbDevice(ctx context.Context, s *session) error {
	devices, err := f.Devices.ListDevices(ctx)
	if err != nil {
		f.Console.Printf("Error getting device list: %v", err)
		f.Console.Println("You need to install iTunes or start usbmuxd to get the device list")
		return f.Console.WaitForEnter(ctx)
	}
	for _, d := range devices {
		if d.Network {
			continue
		}
		if f.UDID != "" && d.UDID != f.UDID {
			continue
		}
		log.WithField("udid", d.UDID).Info("using device")
		s.device = d
		s.state = AwaitCode
		return nil
	}
	f.Console.Println("Please connect your device via USB and try again.")
	f.Console.Println("If your device is connected, check the cable and make sure iTunes is running if on Windows")
	return f.Console.WaitForEnter(ctx)
}

func (f *Flow) awaitCode(ctx context.Context, s *session) error {
	f.Console.Println("Please enter the code you got from the shortcut")
	code, err := f.Console.ReadLine(ctx)
	if err != nil {
		return err
	}
	if code == "" {
		return nil
	}
	s.code = code
	s.state = TryExistingRecord
	return nil
}

func (f *Flow) tryExistingRecord(ctx context.Context, s *session) {
	record, err := f.Devices.ReadPairRecord(ctx, s.device.UDID)
	if err != nil {
		f.Console.Printf("Error reading pair record: %v", err)
		s.state = RegenerateRecord
		return
	}
	serialized, err := SerializeRecord(record, s.device.UDID)
	if err != nil {
		f.Console.Printf("Error serializing pair record: %v", err)
		s.state = RegenerateRecord
		return
	}
	s.record = serialized
	s.state = UploadRecord
}

// SerializeRecord adds the UDID the server needs to the pair record and encodes it as XML plist.
func SerializeRecord(record map[string]interface{}, udid string) ([]byte, error) {
	withUDID := make(map[string]interface{}, len(record)+1)
	for k, v := range record {
		withUDID[k] = v
	}
	withUDID["UDID"] = udid
	return plist.Marshal(withUDID, plist.XMLFormat)
}

func (f *Flow) uploadRecord(ctx context.Context, s *session) error {
	resp, err := f.Uploader.Upload(ctx, s.code, s.record)
	s.record = nil
	switch {
	case errors.Is(err, jitstreamer.ErrMalformedResponse):
		f.Console.Printf("Error parsing response: %v", err)
		f.Console.Println("Error parsing response, pair failed")
	case err != nil:
		f.Console.Printf("Error sending pair record: %v", err)
	case resp.Success:
		f.Console.Println("\nSuccessfully paired! Press ok on the shortcut now.")
		s.outcome = Paired
		s.state = Done
		return f.Console.WaitForEnter(ctx)
	default:
		f.Console.Println("Failed to pair, attempting to regenerate the pair record")
		f.Console.Printf("Error: %s", resp.Message)
	}
	s.state = RegenerateRecord
	return nil
}

func (f *Flow) regenerateRecord(ctx context.Context, s *session) error {
	lockdown, err := f.Devices.ConnectLockdown(ctx, s.device)
	if err != nil {
		f.Console.Printf("Error getting lockdown client: %v", err)
		s.state = TryExistingRecord
		return f.Console.WaitForEnter(ctx)
	}
	defer lockdown.Close()

	if err := lockdown.EnableWirelessDebugging(); err != nil {
		if errors.Is(err, ErrNoPasscode) {
			f.Console.Println("You need to set a passcode on your device for this to work.")
			s.outcome = PasscodeRequired
			s.state = Done
			return f.Console.WaitForEnter(ctx)
		}
		f.Console.Printf("Error setting value: %v", err)
		s.state = TryExistingRecord
		return f.Console.WaitForEnter(ctx)
	}

	for {
		err := lockdown.Pair()
		if err == nil {
			break
		}
		f.Console.Printf("Error pairing: %v", err)
		f.Console.Println("Make sure your device is unlocked and has a passcode")
		if err := f.Console.WaitForEnter(ctx); err != nil {
			return err
		}
	}
	s.state = TryExistingRecord
	return nil
}
