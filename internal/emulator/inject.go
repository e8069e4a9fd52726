// inject.go - host-side event injection API

/*
inject.go exposes the injection surface host tooling drives: USB
connect, control transfers, vendor commands and SCSI writes. Calls are
coalesced through a singleflight.Group keyed by a description of the
call, so a host harness that fires the same injection from more than
one goroutine (a debugger UI and an automated test driver racing each
other, say) collapses into one actual call against the peripheral
rather than arming the same interrupt twice.
*/

package emulator

import (
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/commaai/asm2464pd-firmware/internal/peripheral"
)

// ConnectUSB simulates a host-initiated USB connect at the given speed,
// bypassing the configured connect delay.
func (e *Emulator) ConnectUSB(speed peripheral.USBSpeed) error {
	if err := e.ready(); err != nil {
		return err
	}
	key := fmt.Sprintf("connect:%d", speed)
	_, err, _ := e.injectGroup.Do(key, func() (any, error) {
		e.peripheral.ConnectUSB(speed)
		return nil, nil
	})
	return err
}

// InjectControlTransfer delivers a USB control transfer setup packet
// plus optional data stage, then arms the EX0 interrupt.
func (e *Emulator) InjectControlTransfer(bmRequestType, bRequest byte, wValue, wIndex, wLength uint16, data []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	key := fmt.Sprintf("ctrl:%02x:%02x:%04x:%04x:%04x:%d", bmRequestType, bRequest, wValue, wIndex, wLength, len(data))
	_, err, _ := e.injectGroup.Do(key, func() (any, error) {
		e.peripheral.InjectControlTransfer(bmRequestType, bRequest, wValue, wIndex, wLength, data)
		return nil, nil
	})
	return err
}

// InjectVendorCommand delivers a vendor-specific command descriptor
// block, then arms the EX0 interrupt.
func (e *Emulator) InjectVendorCommand(opcode byte, xdataAddr uint32, sizeOrValue byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	key := fmt.Sprintf("vendor:%02x:%06x:%02x", opcode, xdataAddr, sizeOrValue)
	_, err, _ := e.injectGroup.Do(key, func() (any, error) {
		e.peripheral.InjectVendorCommand(opcode, xdataAddr, sizeOrValue)
		return nil, nil
	})
	return err
}

// InjectSCSIWrite delivers a SCSI WRITE command's LBA, sector count
// and payload, then arms the EX0 interrupt.
func (e *Emulator) InjectSCSIWrite(lba uint64, sectors uint32, data []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	key := fmt.Sprintf("scsiwrite:%d:%d:%d", lba, sectors, len(data))
	_, err, _ := e.injectGroup.Do(key, func() (any, error) {
		e.peripheral.InjectSCSIWrite(lba, sectors, data)
		return nil, nil
	})
	return err
}
