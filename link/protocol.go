package link

import (
	"bytes"
	"slices"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Identifiers of the gate service. Both props must agree on them, they
// are never configurable.
var (
	ServiceUUID = uuid.MustParse("a5e4c3b2-d1f0-4e8a-9c7b-6d2e1f3a5c8e")
	CommandUUID = uuid.MustParse("b6f5d4c3-e2a1-5f9b-0d8c-7e3f2a4b6d9f")
	// Client Characteristic Configuration Descriptor
	CCCDUUID = uuid.MustParse("00002902-0000-1000-8000-00805f9b34fb")
)

// Advertising data types
const (
	adFlags        = 0x01
	adUUID128Some  = 0x06
	adUUID128All   = 0x07
	adCompleteName = 0x09

	// LE general discoverable, BR/EDR not supported
	flagsGeneralDiscoverable = 0x06
	// legacy advertising packet limit
	maxAdvertisementLen = 31
)

// NotifyEnable is written to the CCCD to switch on notifications.
var NotifyEnable = []byte{0x01, 0x00}

type Command byte

const (
	CommandClose Command = 0x00
	CommandOpen  Command = 0x01
)

func (c Command) String() string {
	switch c {
	case CommandOpen:
		return "OPEN"
	case CommandClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// EncodeCommand returns the single byte payload of cmd.
func EncodeCommand(cmd Command) []byte {
	return []byte{byte(cmd)}
}

// DecodeCommand parses a command payload. Anything but a single OPEN or
// CLOSE byte is rejected.
func DecodeCommand(data []byte) (Command, bool) {
	if len(data) != 1 {
		return 0, false
	}
	switch cmd := Command(data[0]); cmd {
	case CommandOpen, CommandClose:
		return cmd, true
	default:
		return 0, false
	}
}

// LittleEndian returns id in over-the-air byte order.
func LittleEndian(id uuid.UUID) []byte {
	b := slices.Clone(id[:])
	slices.Reverse(b)
	return b
}

// AdvertisementPayload builds the advertising data: flags followed by
// the complete list of 128 bit services holding only id. The name is
// left to the scan response so the identifier is never truncated.
func AdvertisementPayload(id uuid.UUID) []byte {
	payload := []byte{2, adFlags, flagsGeneralDiscoverable, 17, adUUID128All}
	return append(payload, LittleEndian(id)...)
}

// ScanResponsePayload carries the complete local name, cut on a rune
// boundary to fit into one packet.
func ScanResponsePayload(name string) []byte {
	n := []byte(name)
	if len(n) > maxAdvertisementLen-2 {
		cut := maxAdvertisementLen - 2
		for cut > 0 && !utf8.RuneStart(n[cut]) {
			cut--
		}
		n = n[:cut]
	}
	payload := []byte{byte(1 + len(n)), adCompleteName}
	return append(payload, n...)
}

// ContainsService reports whether the advertising data lists id as a
// 128 bit service, complete or incomplete list. Malformed structures
// end the walk.
func ContainsService(adv []byte, id uuid.UUID) bool {
	target := LittleEndian(id)
	for i := 0; i < len(adv); {
		length := int(adv[i])
		if length == 0 || i+length >= len(adv) {
			break
		}
		adType := adv[i+1]
		if (adType == adUUID128Some || adType == adUUID128All) && length == 17 {
			if bytes.Equal(adv[i+2:i+18], target) {
				return true
			}
		}
		i += 1 + length
	}
	return false
}
