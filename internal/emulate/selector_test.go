package emulate

import (
	"testing"

	"github.com/sigurn/crc16"
	"github.com/stretchr/testify/require"
)

func TestMethodID(t *testing.T) {
	require.EqualValues(t, 0, MethodID("main"))
	require.EqualValues(t, 0, MethodID("recv_internal"))
	require.EqualValues(t, -1, MethodID("recv_external"))

	// well known get methods ids
	require.EqualValues(t, 85143, MethodID("seqno"))
	require.EqualValues(t, 78748, MethodID("get_public_key"))

	id := MethodID("get_nft_address_by_index")
	require.Equal(t, id, MethodID("get_nft_address_by_index"))
	crc := crc16.Checksum([]byte("get_nft_address_by_index"), crc16.MakeTable(crc16.CRC16_XMODEM))
	require.Equal(t, int32(crc&0xffff)|0x10000, id)
	require.NotZero(t, id&0x10000)
}
