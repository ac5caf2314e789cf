package ios_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/jkcoxson/jitstreamer-pair/ios"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNtohs(t *testing.T) {
	assert.Equal(t, uint16(32498), ios.Ntohs(ios.Lockdownport))
	assert.Equal(t, ios.Lockdownport, ios.Ntohs(ios.Ntohs(ios.Lockdownport)))
}

func TestMuxResponse(t *testing.T) {
	ok, err := ios.ToPlistBytes(ios.MuxResponse{MessageType: "Result", Number: 0})
	require.NoError(t, err)
	assert.True(t, ios.MuxResponsefromBytes(ok).IsSuccessFull())
	assert.NoError(t, ios.MuxResponsefromBytes(ok).Err())

	badDevice := ios.MuxResponse{MessageType: "Result", Number: 2}
	assert.False(t, badDevice.IsSuccessFull())
	assert.EqualError(t, badDevice.Err(), "usbmuxd returned BadDevice (2)")
}

func TestPlistCodec(t *testing.T) {
	codec := ios.NewPlistCodec()
	message := map[string]interface{}{"Label": "test", "Request": "QueryType"}

	encoded, err := codec.Encode(message)
	require.NoError(t, err)

	length := binary.BigEndian.Uint32(encoded[:4])
	assert.Equal(t, len(encoded)-4, int(length))

	decoded, err := codec.Decode(bytes.NewReader(encoded))
	require.NoError(t, err)
	expected, err := ios.ToPlistBytes(message)
	require.NoError(t, err)
	assert.Equal(t, expected, decoded)

	parsed, err := ios.ParsePlist(decoded)
	require.NoError(t, err)
	assert.Equal(t, message, parsed)
}

func TestPlistCodecTruncated(t *testing.T) {
	codec := ios.NewPlistCodec()
	encoded, err := codec.Encode(map[string]interface{}{"Request": "QueryType"})
	require.NoError(t, err)

	_, err = codec.Decode(bytes.NewReader(encoded[:len(encoded)-3]))
	assert.Error(t, err)
	_, err = codec.Decode(nil)
	assert.Error(t, err)
}
