package voltronic

import (
	"fmt"

	"go.uber.org/zap"
)

var crcTable = [16]uint16{
	0x0000, 0x1021, 0x2042, 0x3063,
	0x4084, 0x50a5, 0x60c6, 0x70e7,
	0x8108, 0x9129, 0xa14a, 0xb16b,
	0xc18c, 0xd1ad, 0xe1ce, 0xf1ef,
}

// bytes the device reserves as delimiters: '(', CR and LF
const (
	CRC_RESERVED_PAREN = 0x28
	CRC_RESERVED_CR    = 0x0d
	CRC_RESERVED_LF    = 0x0a
)

// Checksum is the two byte PI30 checksum of a command.
type Checksum struct {
	High byte
	Low  byte
}

func (c Checksum) Full() uint16 {
	return uint16(c.High)<<8 | uint16(c.Low)
}

// String renders the checksum as the two raw bytes sent on the wire.
func (c Checksum) String() string {
	return string([]byte{c.High, c.Low})
}

func (c Checksum) Hex() string {
	return fmt.Sprintf("0x%04X", c.Full())
}

// Compute calculates the checksum of a command string.
// Credits: https://forums.aeva.asn.au/viewtopic.php?t=4332#p53760
func Compute(command string) Checksum {
	return checksumFromRaw(rawChecksum([]byte(command)))
}

// ComputeWithLogger is Compute plus a debug trace of the computed value.
func ComputeWithLogger(command string, logger *zap.Logger) Checksum {
	crc := Compute(command)
	if logger != nil {
		logger.Debug("checksum: computed",
			zap.String("command", command),
			zap.Uint8("crc_high", crc.High),
			zap.Uint8("crc_low", crc.Low),
			zap.Uint16("crc_full", crc.Full()))
	}
	return crc
}

func rawChecksum(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		da := byte(crc>>8) >> 4
		crc <<= 4
		crc ^= crcTable[da^(b>>4)]

		da = byte(crc>>8) >> 4
		crc <<= 4
		crc ^= crcTable[da^(b&0x0f)]
	}
	return crc
}

// escape is applied to each byte after the full computation
func escapeChecksumByte(b byte) byte {
	switch b {
	case CRC_RESERVED_PAREN, CRC_RESERVED_CR, CRC_RESERVED_LF:
		return b + 1
	default:
		return b
	}
}

func checksumFromRaw(crc uint16) Checksum {
	return Checksum{
		High: escapeChecksumByte(byte(crc >> 8)),
		Low:  escapeChecksumByte(byte(crc)),
	}
}
