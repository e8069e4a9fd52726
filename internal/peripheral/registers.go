// registers.go - MMIO register address map for the bridge-controller peripheral surface

/*
registers.go documents the MMIO register map the same way the
Intuition Engine's registers.go lays out its master I/O address table
as a block comment above the constants it defines. The concrete
addresses below are the ones the firmware actually touches during
boot and early enumeration. Everything else in XDATA above 0x6000
that isn't named here has no hook and behaves as plain RAM: a read
returns the stored byte (zero after reset unless written), with no
poll-count-dependent default.

    Region                    Range             Notes
    ----------------------------------------------------------------
    XRAM work area            0x0000-0x5FFF     plain XDATA RAM
    Flash buffer               0x7000-0x7FFF     pre-filled 0xFF at reset
    USB/SCSI buffer             0x8000-0x8FFF     inject_scsi_write bulk data
    USB interface regs          0x9000-0x93FF     status/speed/link/PHY
    Power management             0x92C0-0x92FF     enable/clock/power-state bits
    USB control buffer           0x9E00-0x9FFF     setup packet + vendor CDB
    NVMe I/O queue               0xA000-0xAFFF     acknowledged, not simulated
    NVMe admin queues            0xB000-0xB1FF     acknowledged, not simulated
    PCIe passthrough             0xB200-0xB8FF     trigger/status pair, auto-complete
    UART                         0xC000-0xC00F     TX data + LSR
    NVMe interface                0xC400-0xC5FF     ready/busy/status
    PHY extended                  0xC600-0xC6FF     status bits
    Interrupt/I2C/Flash/DMA        0xC800-0xC8FF     system interrupt latch, flash CSR, DMA status
    USB PD controller              0xCA00-0xCAFF     PD interrupt status pair
    Timer/CPU control               0xCC00-0xCCFF     four timer CSRs, CPU exec status
    SCSI DMA                        0xCE00-0xCEFF     SCSI DMA ready, debug enable mask
    Command engine                   0xE400-0xE4FF     vendor-command status (one-shot)
    System status                    0xE700-0xE7FF     link/flash-ready bits
*/

package peripheral

const (
	// USB block.
	regUSBStatus     = 0x9000 // bit7 connected, bit0 active
	regUSB3Speed     = 0x90E0 // speed class once link trains past USB2
	regUSBLinkActive = 0x9100 // bit1 link active
	regPHYActive     = 0x9105 // PHY active once the receiver locks
	regUSBSetupBase  = 0x9E00 // 8-byte setup packet
	regUSBCDBBase    = 0x9E08 // vendor command descriptor block
	regSCSIBufBase   = 0x8000 // bulk SCSI write landing buffer
	regPHYStatus     = 0xCD31 // bit0 ready, bit1 busy

	// PCIe.
	regPCIeTrigger = 0xB200
	regPCIeStatus  = 0xB296

	// UART.
	regUARTTX  = 0xC000
	regUARTLSR = 0xC009

	// NVMe.
	regNVMeReady     = 0xC412
	regNVMeBusy      = 0xC413
	regNVMeQueueBusy = 0xC471 // bit0 set when the USB connect event arms the queue

	// Interrupt / flash / DMA.
	regSysIntLatch  = 0xC8B8
	regFlashCSR     = 0xC8C0
	regDMAStatus    = 0xC8D6
	regIntUSBStatus = 0xC802 // bit2 set on connect: arms NVMe queue processing
	regPDDebugTrig  = 0xC80A // bit6 set on connect: PD debug output trigger

	// USB PD controller (supplemental).
	regPDIntStatus = 0xCA10
	regPDIntState1 = 0xCA0D // bit3 connect, bits 2+3 on SOURCE_CAP
	regPDIntState2 = 0xCA0E // bit2 set by both connect and SOURCE_CAP
	regPDMsgType   = 0xCA06 // 0x61 == PD Source_Capabilities message
	regPDEventType = 0xE40F // debug-output event classifier
	regPDSubEvent  = 0xE410 // debug-output sub-event, always 0x00 so far

	// Timer/CPU control. Four CSRs; S5 of the seed scenarios exercises
	// the second one.
	regTimerCSR0 = 0xCC10
	regTimerCSR1 = 0xCC11
	regTimerCSR2 = 0xCC12
	regTimerCSR3 = 0xCC13

	// SCSI DMA / debug.
	regSCSIDMAReady  = 0xCE00
	regDebugEnable   = 0xCE5D

	// Command engine (one-shot status).
	regCmdEngineStatus = 0xE41C

	// System status.
	regSysLinkStatus  = 0xE700
	regSysFlashReady  = 0xE701

	// Sentinel bytes the firmware's early PHY-init loop watches; see
	// quirks.go for the rule that zeroes regQuirkSentinel.
	regQuirkSentinel = 0x0AE3
)

// defaultThresholds is the auto-ready/auto-clear threshold table's
// documented default content, keyed by address, matching the values
// observed in the reference implementation: the PCIe status register
// becomes ready after 3 polls, timer CSRs expire after 3 polls, and
// sync-flag RAM addresses (configured separately, see
// Options.SyncFlags) clear after 5 by default. The system-interrupt
// latch and command-engine status entries are listed too, but their
// one-shot read hooks clear bit 0 on the first read and do not consult
// this table.
func defaultThresholds() map[uint16]int {
	return map[uint16]int{
		regSysIntLatch:     3,
		regCmdEngineStatus: 3,
		regTimerCSR0:       3,
		regTimerCSR1:       3,
		regTimerCSR2:       3,
		regTimerCSR3:       3,
		regPCIeStatus:      3,
	}
}

// defaultSyncFlags matches spec.md S4's worked example: 0x1238 at
// threshold 5.
func defaultSyncFlags() map[uint16]int {
	return map[uint16]int{
		0x1238: 5,
	}
}
