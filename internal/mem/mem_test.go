package mem

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadCodeBanking(t *testing.T) {
	m := New()
	data := make([]byte, CodeMinSize)
	data[0x9000] = 0xAA
	data[Bank1FileBase+(0x9000-CodeSharedSize)] = 0xBB
	data[0x1000] = 0x11
	m.LoadCode(data)

	require.Equal(t, byte(0xAA), m.ReadCode(0x9000))
	m.PokeSFR(DPX, 0x01)
	require.Equal(t, byte(0xBB), m.ReadCode(0x9000))
	m.PokeSFR(DPX, 0x00)
	require.Equal(t, byte(0x11), m.ReadCode(0x1000))
}

func TestReadCodeOutOfRange(t *testing.T) {
	m := New()
	m.LoadCode(make([]byte, 16))
	require.Equal(t, byte(0xFF), m.ReadCode(0x9000))
}

func TestBitAddressing(t *testing.T) {
	m := New()
	require.NoError(t, m.WriteIDATA(0x20, 0xA5))

	cases := []struct {
		bit  uint8
		want bool
	}{
		{0x00, true}, {0x01, false}, {0x02, true},
		{0x05, true}, {0x06, false}, {0x07, true},
	}
	for _, c := range cases {
		got, err := m.ReadBit(c.bit)
		require.NoError(t, err)
		require.Equalf(t, c.want, got, "bit %#x", c.bit)
	}

	require.NoError(t, m.WriteBit(0x00, false))
	v, _ := m.ReadIDATA(0x20)
	require.Equal(t, byte(0xA4), v)
}

func TestBitAddressingSFR(t *testing.T) {
	m := New()
	m.PokeSFR(0x88, 0x00) // TCON-like, address % 8 == 0
	require.NoError(t, m.WriteBit(0x80, true))
	v := m.PeekSFR(0x88)
	require.Equal(t, byte(0x01), v)

	_, err := m.ReadBit(0x82) // 0x82&0xF8 == 0x80, congruent to 0 mod 8, so valid
	require.NoError(t, err)
}

func TestSyncFlagAutoClear(t *testing.T) {
	m := New()
	m.SetSyncFlag(0x1238, 5)
	require.NoError(t, m.WriteXDATA(0x1238, 0x01))

	for i := 0; i < 4; i++ {
		v, err := m.ReadXDATA(0x1238)
		require.NoError(t, err)
		require.Equalf(t, byte(0x01), v, "read %d", i+1)
	}
	v, err := m.ReadXDATA(0x1238)
	require.NoError(t, err)
	require.Equal(t, byte(0x00), v)

	v, err = m.ReadXDATA(0x1238)
	require.NoError(t, err)
	require.Equal(t, byte(0x00), v)
}

func TestSyncFlagResetsOnWrite(t *testing.T) {
	m := New()
	m.SetSyncFlag(0x1238, 2)
	require.NoError(t, m.WriteXDATA(0x1238, 0x01))
	_, _ = m.ReadXDATA(0x1238)
	require.NoError(t, m.WriteXDATA(0x1238, 0x01))
	v, _ := m.ReadXDATA(0x1238)
	require.Equal(t, byte(0x01), v)
}

func TestDirectAddressingRoutesIDATAAndSFR(t *testing.T) {
	m := New()
	require.NoError(t, m.WriteDirect(0x10, 0x42))
	v, err := m.ReadIDATA(0x10)
	require.NoError(t, err)
	require.Equal(t, byte(0x42), v)

	require.NoError(t, m.WriteDirect(0x90, 0x99))
	require.Equal(t, byte(0x99), m.PeekSFR(0x90))
}

func TestXDATAHookInvokedOncePerAccess(t *testing.T) {
	m := New()
	reads := 0
	writes := 0
	m.SetXDATAHooks(0x9000,
		func(addr uint16) (byte, bool, error) {
			reads++
			return 0x7A, true, nil
		},
		func(addr uint16, v byte) error {
			writes++
			return nil
		},
	)
	v, err := m.ReadXDATA(0x9000)
	require.NoError(t, err)
	require.Equal(t, byte(0x7A), v)
	require.Equal(t, 1, reads)

	require.NoError(t, m.WriteXDATA(0x9000, 0x01))
	require.Equal(t, 1, writes)
}

func TestPeripheralFaultPropagates(t *testing.T) {
	m := New()
	boom := errors.New("boom")
	m.SetXDATAHooks(0x9000, func(addr uint16) (byte, bool, error) {
		return 0, false, boom
	}, nil)

	_, err := m.ReadXDATA(0x9000)
	require.Error(t, err)
	var pf *PeripheralFault
	require.True(t, errors.As(err, &pf))
	require.ErrorIs(t, err, boom)
}

func TestInvalidSFRAddress(t *testing.T) {
	m := New()
	_, err := m.ReadSFR(0x10)
	require.Error(t, err)
	var ia *InvalidAddress
	require.True(t, errors.As(err, &ia))
}

func TestResetRAMDefaults(t *testing.T) {
	m := New()
	m.LoadCode(make([]byte, CodeMinSize))
	require.NoError(t, m.WriteXDATA(0x0010, 0x55))
	m.ResetRAM()

	v, _ := m.ReadXDATA(0x0010)
	require.Equal(t, byte(0x00), v)
	v, _ = m.ReadXDATA(0x7050)
	require.Equal(t, byte(0xFF), v)
	require.Equal(t, byte(0x00), m.PeekXDATA(0x0AE5))
	require.Equal(t, byte(0x3F), m.PeekXDATA(0x0AF0))
}
