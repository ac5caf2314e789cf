package ios

import (
	"encoding/binary"
	"fmt"

	"github.com/Masterminds/semver"
	plist "howett.net/plist"
)

// ToPlistBytes converts data to an XML plist. Structs need exported fields.
func ToPlistBytes(data interface{}) ([]byte, error) {
	bytes, err := plist.Marshal(data, plist.XMLFormat)
	if err != nil {
		return nil, fmt.Errorf("failed converting %T to plist: %w", data, err)
	}
	return bytes, nil
}

// ParsePlist parses data into a generic dictionary.
func ParsePlist(data []byte) (map[string]interface{}, error) {
	var result map[string]interface{}
	_, err := plist.Unmarshal(data, &result)
	return result, err
}

// Ntohs swaps the byte order of port, usbmuxd expects ports in network order.
func Ntohs(port uint16) uint16 {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, port)
	return binary.LittleEndian.Uint16(buf)
}

// IOS11 is the first version that knows the wireless lockdown domain.
func IOS11() *semver.Version {
	return semver.MustParse("11.0")
}
