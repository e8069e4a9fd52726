package peripheral

import (
	"bytes"
	"testing"

	"github.com/commaai/asm2464pd-firmware/internal/mem"
	"github.com/stretchr/testify/require"
)

type fakeIRQ struct {
	ext0, timer0, ext1, timer1, serial, timer2 int
}

func (f *fakeIRQ) RaiseExt0()   { f.ext0++ }
func (f *fakeIRQ) RaiseTimer0() { f.timer0++ }
func (f *fakeIRQ) RaiseExt1()   { f.ext1++ }
func (f *fakeIRQ) RaiseTimer1() { f.timer1++ }
func (f *fakeIRQ) RaiseSerial() { f.serial++ }
func (f *fakeIRQ) RaiseTimer2() { f.timer2++ }

func newTestPeripheral(t *testing.T) (*Peripheral, *mem.Memory, *fakeIRQ) {
	t.Helper()
	m := mem.New()
	irq := &fakeIRQ{}
	p := New(m, irq, DefaultOptions())
	return p, m, irq
}

func TestResetDefaultsMatchSeed(t *testing.T) {
	_, m, _ := newTestPeripheral(t)
	require.Equal(t, byte(0x60), m.PeekXDATA(regUARTLSR))
	require.Equal(t, byte(0x00), m.PeekXDATA(regUSBStatus))
	require.Equal(t, byte(0x02), m.PeekXDATA(regPCIeStatus))
	require.Equal(t, byte(0x02), m.PeekXDATA(regNVMeReady))
	require.Equal(t, byte(0x04), m.PeekXDATA(regDMAStatus))
	require.Equal(t, byte(0x01), m.PeekXDATA(regPHYStatus))
	require.Equal(t, byte(0xFF), m.PeekXDATA(regDebugEnable))
}

func TestUARTTXGoesToSink(t *testing.T) {
	p, m, _ := newTestPeripheral(t)
	var buf bytes.Buffer
	p.SetUARTSink(&buf)
	require.NoError(t, m.WriteXDATA(regUARTTX, 'H'))
	require.NoError(t, m.WriteXDATA(regUARTTX, 'i'))
	require.Equal(t, "Hi", buf.String())
}

func TestUARTLSRAlwaysReady(t *testing.T) {
	_, m, _ := newTestPeripheral(t)
	for i := 0; i < 3; i++ {
		v, err := m.ReadXDATA(regUARTLSR)
		require.NoError(t, err)
		require.Equal(t, byte(0x60), v)
	}
}

// Trigger-then-poll-clear: PCIe trigger bit 0 clears after the
// configured threshold of reads once set.
func TestPCIeTriggerPollClear(t *testing.T) {
	p, m, _ := newTestPeripheral(t)
	require.NoError(t, m.WriteXDATA(regPCIeTrigger, 0x01))

	for i := 0; i < p.threshold(regPCIeTrigger, 3)-1; i++ {
		v, err := m.ReadXDATA(regPCIeTrigger)
		require.NoError(t, err)
		require.Equal(t, byte(0x01), v, "poll %d should still observe the trigger bit set", i+1)
	}
	v, err := m.ReadXDATA(regPCIeTrigger)
	require.NoError(t, err)
	require.Equal(t, byte(0x00), v)
}

// Status-becomes-ready: the PCIe status register gains its ready bit
// after the threshold number of reads.
func TestPCIeStatusBecomesReady(t *testing.T) {
	_, m, _ := newTestPeripheral(t)
	var last byte
	for i := 0; i < 3; i++ {
		v, err := m.ReadXDATA(regPCIeStatus)
		require.NoError(t, err)
		last = v
	}
	require.Equal(t, byte(0x02), last&0x02)
}

// One-shot status: reading the system interrupt latch clears bit 0.
func TestSystemIntLatchOneShot(t *testing.T) {
	_, m, _ := newTestPeripheral(t)
	m.PokeXDATA(regSysIntLatch, 0x01)

	v, err := m.ReadXDATA(regSysIntLatch)
	require.NoError(t, err)
	require.Equal(t, byte(0x01), v)

	v, err = m.ReadXDATA(regSysIntLatch)
	require.NoError(t, err)
	require.Equal(t, byte(0x00), v)
}

// S5: timer CSR auto-ready. Writing 0x01 arms the timer; after the
// threshold is reached the expired bit 0x02 is ORed in on read; a
// write of 0x04 clears both bits.
func TestTimerCSRAutoReadyS5(t *testing.T) {
	_, m, _ := newTestPeripheral(t)
	require.NoError(t, m.WriteXDATA(regTimerCSR1, 0x01))

	v, err := m.ReadXDATA(regTimerCSR1)
	require.NoError(t, err)
	require.Equal(t, byte(0x01), v)
	v, err = m.ReadXDATA(regTimerCSR1)
	require.NoError(t, err)
	require.Equal(t, byte(0x01), v)

	v, err = m.ReadXDATA(regTimerCSR1)
	require.NoError(t, err)
	require.Equal(t, byte(0x03), v)

	require.NoError(t, m.WriteXDATA(regTimerCSR1, 0x04))
	v, err = m.ReadXDATA(regTimerCSR1)
	require.NoError(t, err)
	require.Equal(t, byte(0x00), v)
}

func TestUSBConnectDeferredEvent(t *testing.T) {
	p, m, irq := newTestPeripheral(t)
	p.usbConnectDelay = 2000

	p.Tick(1000)
	require.Equal(t, byte(0x00), m.PeekXDATA(regUSBStatus))
	require.Equal(t, 0, irq.ext0)

	p.Tick(1000)
	require.NotEqual(t, byte(0x00), m.PeekXDATA(regUSBStatus)&0x80)
	require.Equal(t, 1, irq.ext0)
	require.True(t, p.usbConnected)
}

// connect_usb must set the whole register cluster firmware enumeration
// loops poll (spec.md §4.2), not just regUSBStatus: original_source's
// HardwareState.tick sets ten-plus bytes atomically on the USB plug-in
// event, and this mirrors that set.
func TestUSBConnectRegisterClusterIsAtomic(t *testing.T) {
	p, m, irq := newTestPeripheral(t)
	p.usbConnectDelay = 2000

	p.Tick(2000)
	require.Equal(t, 1, irq.ext0)
	require.Equal(t, byte(0x81), m.PeekXDATA(regUSBStatus))
	require.Equal(t, byte(0x02), m.PeekXDATA(regUSB3Speed))
	require.Equal(t, byte(0x02), m.PeekXDATA(regUSBLinkActive))
	require.Equal(t, byte(0xFF), m.PeekXDATA(regPHYActive))
	require.Equal(t, byte(0x04), m.PeekXDATA(regIntUSBStatus))
	require.Equal(t, byte(0x01), m.PeekXDATA(regNVMeQueueBusy))
	require.Equal(t, byte(0x08), m.PeekXDATA(regPDIntState1))
	require.Equal(t, byte(0x04), m.PeekXDATA(regPDIntState2))
	require.Equal(t, byte(0x40), m.PeekXDATA(regPDDebugTrig))
	require.Equal(t, byte(0x01), m.PeekXDATA(regPDEventType))
	require.Equal(t, byte(0x00), m.PeekXDATA(regPDSubEvent))
}

// The supplemental PD SOURCE_CAP event fires pdSourceCapLag cycles after
// connect and overwrites the PD cluster with its own message-type byte,
// distinguishing it from the connect event (original_source's tick fires
// this at usb_connect_delay+10001).
func TestPDSourceCapRegisterCluster(t *testing.T) {
	p, m, _ := newTestPeripheral(t)
	p.usbConnectDelay = 1000
	p.pdSourceCapLag = 500

	p.Tick(1000)
	require.False(t, p.pdSourceCapFired)

	p.Tick(500)
	require.True(t, p.pdSourceCapFired)
	require.Equal(t, byte(0x0C), m.PeekXDATA(regPDIntState1))
	require.Equal(t, byte(0x04), m.PeekXDATA(regPDIntState2))
	require.Equal(t, byte(0x61), m.PeekXDATA(regPDMsgType))
	require.Equal(t, byte(0x01), m.PeekXDATA(regPDEventType))
	require.Equal(t, byte(0x00), m.PeekXDATA(regPDSubEvent))
}

func TestInjectControlTransferArmsExt0(t *testing.T) {
	p, m, irq := newTestPeripheral(t)
	p.InjectControlTransfer(0x80, 0x06, 0x0100, 0x0000, 0x0012, []byte{1, 2, 3})
	require.Equal(t, 1, irq.ext0)
	v, err := m.ReadXDATA(regUSBSetupBase)
	require.NoError(t, err)
	require.Equal(t, byte(0x80), v)
}

func TestInjectSCSIWritePopulatesBuffer(t *testing.T) {
	p, m, irq := newTestPeripheral(t)
	p.InjectSCSIWrite(512, 1, []byte{0xAA, 0xBB})
	require.Equal(t, 1, irq.ext0)
	v, err := m.ReadXDATA(regSCSIBufBase)
	require.NoError(t, err)
	require.Equal(t, byte(0xAA), v)
}

func TestQuirkSentinelZeroedOnConnect(t *testing.T) {
	p, m, _ := newTestPeripheral(t)
	m.PokeXDATA(regQuirkSentinel, 0x7F)
	p.ConnectUSB(FullSpeed)
	p.Tick(1)
	require.Equal(t, byte(0x00), m.PeekXDATA(regQuirkSentinel))
}

func TestQuirkCanBeDisabled(t *testing.T) {
	m := mem.New()
	irq := &fakeIRQ{}
	opts := DefaultOptions()
	opts.DisabledQuirks = map[string]bool{"sentinel-zero-on-connect": true}
	p := New(m, irq, opts)

	m.PokeXDATA(regQuirkSentinel, 0x7F)
	p.ConnectUSB(FullSpeed)
	p.Tick(1)
	require.Equal(t, byte(0x7F), m.PeekXDATA(regQuirkSentinel))
}

func TestLuaQuirkAppliedEachTick(t *testing.T) {
	p, m, _ := newTestPeripheral(t)
	script := `
function apply(read, write)
  write(0x1000, read(0x1000) + 1)
end
`
	q, err := NewLuaQuirk("counter", script)
	require.NoError(t, err)
	defer q.Close()
	p.AddQuirk(q)

	p.Tick(1)
	p.Tick(1)
	require.Equal(t, byte(2), m.PeekXDATA(0x1000))
	require.NoError(t, q.LastError)
}

func TestAccessLogBounded(t *testing.T) {
	p, m, _ := newTestPeripheral(t)
	for i := 0; i < 50; i++ {
		_, _ = m.ReadXDATA(regUARTLSR)
	}
	require.LessOrEqual(t, len(p.AccessLog()), 16)
}
