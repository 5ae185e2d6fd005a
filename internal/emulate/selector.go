package emulate

import "github.com/sigurn/crc16"

const (
	SelectorMain         int32 = 0
	SelectorRecvInternal int32 = 0
	SelectorRecvExternal int32 = -1
)

var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// MethodID returns function selector of contract method by its name.
func MethodID(name string) int32 {
	switch name {
	case "main":
		return SelectorMain
	case "recv_internal":
		return SelectorRecvInternal
	case "recv_external":
		return SelectorRecvExternal
	}
	return int32(crc16.Checksum([]byte(name), crcTable)&0xffff) | 0x10000
}
