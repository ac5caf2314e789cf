package pairing_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jkcoxson/jitstreamer-pair/jitstreamer"
	"github.com/jkcoxson/jitstreamer-pair/pairing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	plist "howett.net/plist"
)

type DeviceSourceMock struct {
	mock.Mock
}

func (m *DeviceSourceMock) ListDevices(ctx context.Context) ([]pairing.Device, error) {
	args := m.Called()
	devices, _ := args.Get(0).([]pairing.Device)
	return devices, args.Error(1)
}

func (m *DeviceSourceMock) ReadPairRecord(ctx context.Context, udid string) (map[string]interface{}, error) {
	args := m.Called(udid)
	record, _ := args.Get(0).(map[string]interface{})
	return record, args.Error(1)
}

func (m *DeviceSourceMock) ConnectLockdown(ctx context.Context, device pairing.Device) (pairing.Lockdown, error) {
	args := m.Called(device)
	lockdown, _ := args.Get(0).(pairing.Lockdown)
	return lockdown, args.Error(1)
}

type LockdownMock struct {
	mock.Mock
}

func (m *LockdownMock) EnableWirelessDebugging() error {
	return m.Called().Error(0)
}

func (m *LockdownMock) Pair() error {
	return m.Called().Error(0)
}

func (m *LockdownMock) Close() error {
	return m.Called().Error(0)
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, code string, record []byte) (jitstreamer.Response, error) {
	args := m.Called(code, record)
	return args.Get(0).(jitstreamer.Response), args.Error(1)
}

var (
	usbDevice     = pairing.Device{UDID: "usb-udid", DeviceID: 3}
	networkDevice = pairing.Device{UDID: "net-udid", DeviceID: 1, Network: true}
	storedRecord  = map[string]interface{}{"HostID": "HOST", "SystemBUID": "BUID"}
)

func newFlow(devices *DeviceSourceMock, uploader *UploaderMock, input string) (*pairing.Flow, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &pairing.Flow{
		Devices:  devices,
		Uploader: uploader,
		Console:  pairing.NewConsole(strings.NewReader(input), out),
	}, out
}

func containsUDID(udid string) interface{} {
	return mock.MatchedBy(func(record []byte) bool {
		var decoded map[string]interface{}
		if _, err := plist.Unmarshal(record, &decoded); err != nil {
			return false
		}
		return decoded["UDID"] == udid
	})
}

func TestExistingRecordAccepted(t *testing.T) {
	devices := new(DeviceSourceMock)
	uploader := new(UploaderMock)
	devices.On("ListDevices").Return([]pairing.Device{networkDevice, usbDevice}, nil)
	devices.On("ReadPairRecord", usbDevice.UDID).Return(storedRecord, nil)
	uploader.On("Upload", "1234", containsUDID(usbDevice.UDID)).Return(jitstreamer.Response{Success: true}, nil)

	flow, out := newFlow(devices, uploader, "1234\n\n")
	outcome, err := flow.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, pairing.Paired, outcome)
	assert.Contains(t, out.String(), "Successfully paired! Press ok on the shortcut now.")
	assert.Equal(t, 1, strings.Count(out.String(), "Press enter to continue"))
	devices.AssertNotCalled(t, "ConnectLockdown", mock.Anything)
	uploader.AssertExpectations(t)
}

func TestFailureMessageReentersRegeneration(t *testing.T) {
	devices := new(DeviceSourceMock)
	uploader := new(UploaderMock)
	lockdown := new(LockdownMock)
	devices.On("ListDevices").Return([]pairing.Device{usbDevice}, nil)
	devices.On("ReadPairRecord", usbDevice.UDID).Return(storedRecord, nil)
	devices.On("ConnectLockdown", usbDevice).Return(lockdown, nil)
	uploader.On("Upload", "code", mock.Anything).Return(jitstreamer.Response{Success: false, Message: "x"}, nil)
	lockdown.On("EnableWirelessDebugging").Return(fmt.Errorf("%w: lockdown SetValue failed: Weird", pairing.ErrNoPasscode))
	lockdown.On("Close").Return(nil)

	flow, out := newFlow(devices, uploader, "code\n\n")
	outcome, err := flow.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, pairing.PasscodeRequired, outcome)
	assert.Contains(t, out.String(), "Error: x")
	assert.Contains(t, out.String(), "You need to set a passcode on your device for this to work.")
	devices.AssertCalled(t, "ConnectLockdown", usbDevice)
	lockdown.AssertNotCalled(t, "Pair")
	lockdown.AssertCalled(t, "Close")
}

func TestMissingRecordIsRegenerated(t *testing.T) {
	devices := new(DeviceSourceMock)
	uploader := new(UploaderMock)
	lockdown := new(LockdownMock)
	devices.On("ListDevices").Return([]pairing.Device{usbDevice}, nil)
	devices.On("ReadPairRecord", usbDevice.UDID).Return(nil, errors.New("no record")).Once()
	devices.On("ReadPairRecord", usbDevice.UDID).Return(storedRecord, nil).Once()
	devices.On("ConnectLockdown", usbDevice).Return(lockdown, nil)
	lockdown.On("EnableWirelessDebugging").Return(nil)
	lockdown.On("Pair").Return(errors.New("PairingDialogResponsePending")).Once()
	lockdown.On("Pair").Return(nil).Once()
	lockdown.On("Close").Return(nil)
	uploader.On("Upload", "code", containsUDID(usbDevice.UDID)).Return(jitstreamer.Response{Success: true}, nil)

	// code, enter after the failed pair attempt, enter after success
	flow, out := newFlow(devices, uploader, "code\n\n\n")
	outcome, err := flow.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, pairing.Paired, outcome)
	assert.Contains(t, out.String(), "Error reading pair record: no record")
	assert.Contains(t, out.String(), "Make sure your device is unlocked and has a passcode")
	lockdown.AssertNumberOfCalls(t, "Pair", 2)
	devices.AssertExpectations(t)
}

func TestWaitsForUSBDevice(t *testing.T) {
	devices := new(DeviceSourceMock)
	uploader := new(UploaderMock)
	devices.On("ListDevices").Return(nil, errors.New("usbmuxd not running")).Once()
	devices.On("ListDevices").Return([]pairing.Device{}, nil).Once()
	devices.On("ListDevices").Return([]pairing.Device{networkDevice}, nil).Once()
	devices.On("ListDevices").Return([]pairing.Device{networkDevice, usbDevice}, nil).Once()
	devices.On("ReadPairRecord", usbDevice.UDID).Return(storedRecord, nil)
	uploader.On("Upload", "code", mock.Anything).Return(jitstreamer.Response{Success: true}, nil)

	flow, out := newFlow(devices, uploader, "\n\n\ncode\n\n")
	outcome, err := flow.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, pairing.Paired, outcome)
	assert.Contains(t, out.String(), "Error getting device list: usbmuxd not running")
	assert.Equal(t, 2, strings.Count(out.String(), "Please connect your device via USB and try again."))
	devices.AssertNumberOfCalls(t, "ListDevices", 4)
}

func TestPinnedUDID(t *testing.T) {
	other := pairing.Device{UDID: "other", DeviceID: 9}
	devices := new(DeviceSourceMock)
	uploader := new(UploaderMock)
	devices.On("ListDevices").Return([]pairing.Device{other, usbDevice}, nil)
	devices.On("ReadPairRecord", usbDevice.UDID).Return(storedRecord, nil)
	uploader.On("Upload", "code", containsUDID(usbDevice.UDID)).Return(jitstreamer.Response{Success: true}, nil)

	flow, _ := newFlow(devices, uploader, "code\n\n")
	flow.UDID = usbDevice.UDID
	_, err := flow.Run(context.Background())

	require.NoError(t, err)
	devices.AssertNotCalled(t, "ReadPairRecord", "other")
}

func TestEmptyCodeIsAskedAgain(t *testing.T) {
	devices := new(DeviceSourceMock)
	uploader := new(UploaderMock)
	devices.On("ListDevices").Return([]pairing.Device{usbDevice}, nil)
	devices.On("ReadPairRecord", usbDevice.UDID).Return(storedRecord, nil)
	uploader.On("Upload", "42", mock.Anything).Return(jitstreamer.Response{Success: true}, nil)

	flow, out := newFlow(devices, uploader, "\n  \n42\n\n")
	_, err := flow.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out.String(), "Please enter the code you got from the shortcut"))
}

func TestUploadErrorsRegenerate(t *testing.T) {
	testCases := map[string]struct {
		uploadErr error
		expected  string
	}{
		"malformed json": {fmt.Errorf("%w: bad", jitstreamer.ErrMalformedResponse), "Error parsing response, pair failed"},
		"transport":      {errors.New("connection reset"), "Error sending pair record: connection reset"},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			devices := new(DeviceSourceMock)
			uploader := new(UploaderMock)
			lockdown := new(LockdownMock)
			devices.On("ListDevices").Return([]pairing.Device{usbDevice}, nil)
			devices.On("ReadPairRecord", usbDevice.UDID).Return(storedRecord, nil)
			devices.On("ConnectLockdown", usbDevice).Return(lockdown, nil)
			lockdown.On("EnableWirelessDebugging").Return(nil)
			lockdown.On("Pair").Return(nil)
			lockdown.On("Close").Return(nil)
			uploader.On("Upload", "code", mock.Anything).Return(jitstreamer.Response{}, tc.uploadErr).Once()
			uploader.On("Upload", "code", mock.Anything).Return(jitstreamer.Response{Success: true}, nil).Once()

			flow, out := newFlow(devices, uploader, "code\n\n")
			outcome, err := flow.Run(context.Background())

			require.NoError(t, err)
			assert.Equal(t, pairing.Paired, outcome)
			assert.Contains(t, out.String(), tc.expected)
			lockdown.AssertNumberOfCalls(t, "Pair", 1)
		})
	}
}

func TestLockdownErrorsRetry(t *testing.T) {
	devices := new(DeviceSourceMock)
	uploader := new(UploaderMock)
	lockdown := new(LockdownMock)
	devices.On("ListDevices").Return([]pairing.Device{usbDevice}, nil)
	devices.On("ReadPairRecord", usbDevice.UDID).Return(nil, errors.New("no record")).Times(3)
	devices.On("ReadPairRecord", usbDevice.UDID).Return(storedRecord, nil)
	devices.On("ConnectLockdown", usbDevice).Return(nil, errors.New("device locked")).Once()
	devices.On("ConnectLockdown", usbDevice).Return(lockdown, nil)
	lockdown.On("EnableWirelessDebugging").Return(errors.New("SetProhibited")).Once()
	lockdown.On("EnableWirelessDebugging").Return(nil)
	lockdown.On("Pair").Return(nil)
	lockdown.On("Close").Return(nil)
	uploader.On("Upload", "code", mock.Anything).Return(jitstreamer.Response{Success: true}, nil)

	flow, out := newFlow(devices, uploader, "code\n\n\n\n")
	outcome, err := flow.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, pairing.Paired, outcome)
	assert.Contains(t, out.String(), "Error getting lockdown client: device locked")
	assert.Contains(t, out.String(), "Error setting value: SetProhibited")
	lockdown.AssertNumberOfCalls(t, "Pair", 1)
}

func TestClosedConsoleEndsFlow(t *testing.T) {
	devices := new(DeviceSourceMock)
	uploader := new(UploaderMock)
	devices.On("ListDevices").Return([]pairing.Device{}, nil)

	flow, _ := newFlow(devices, uploader, "")
	_, err := flow.Run(context.Background())

	assert.ErrorIs(t, err, io.EOF)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	flow, _ := newFlow(new(DeviceSourceMock), new(UploaderMock), "")
	_, err := flow.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInterruptWhileWaitingForCode(t *testing.T) {
	devices := new(DeviceSourceMock)
	uploader := new(UploaderMock)
	devices.On("ListDevices").Return([]pairing.Device{{UDID: "usb0", DeviceID: 1}}, nil)
	stdin, _ := io.Pipe()
	t.Cleanup(func() { stdin.Close() })
	flow := &pairing.Flow{Devices: devices, Uploader: uploader, Console: pairing.NewConsole(stdin, io.Discard)}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	_, err := flow.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	devices.AssertCalled(t, "ListDevices")
	uploader.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestSerializeRecord(t *testing.T) {
	record := map[string]interface{}{"HostID": "HOST", "EscrowBag": []byte{1, 2, 3}}

	serialized, err := pairing.SerializeRecord(record, "udid0")
	require.NoError(t, err)

	assert.Contains(t, string(serialized), "<?xml")
	var decoded map[string]interface{}
	_, err = plist.Unmarshal(serialized, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "udid0", decoded["UDID"])
	assert.Equal(t, "HOST", decoded["HostID"])
	assert.Equal(t, []byte{1, 2, 3}, decoded["EscrowBag"])
	assert.NotContains(t, record, "UDID")
}
