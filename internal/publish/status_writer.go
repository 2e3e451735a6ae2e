// internal/publish/status_writer.go
package publish

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/tamzrod/capture-sync/internal/status"
)

// endpointClient is the exact contract the status writer uses.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// StatusWriter is the delivery-only contract for device status.
// It receives a snapshot and writes it verbatim.
// No logic, no state, no interpretation.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// StatusPlan locates one device's block in status memory.
type StatusPlan struct {
	UnitID     uint8
	BaseSlot   uint16
	DeviceName string
}

// deviceStatusWriter is the concrete implementation used by the recorder.
type deviceStatusWriter struct {
	plan StatusPlan
	cli  endpointClient

	needFull bool
	last     status.Snapshot
	nameRegs []uint16
}

// NewDeviceStatusWriter builds a status writer for one device block.
func NewDeviceStatusWriter(plan StatusPlan, cli endpointClient) (StatusWriter, error) {
	if cli == nil {
		return nil, errors.New("status writer: client required")
	}
	if (int(plan.BaseSlot)+1)*status.SlotsPerDevice > 0x10000 {
		return nil, errors.Errorf("status writer: base slot %d out of register range", plan.BaseSlot)
	}
	return &deviceStatusWriter{
		plan:     plan,
		cli:      cli,
		needFull: true, // full re-assert on first successful write
		nameRegs: status.EncodeDeviceName(plan.DeviceName),
	}, nil
}

// WriteStatus delivers a device status snapshot into status memory.
// On any write failure, the next call re-asserts the full block.
func (sw *deviceStatusWriter) WriteStatus(s status.Snapshot) error {
	baseAddr := sw.baseAddr()

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if sw.needFull {
		if err := sw.cli.WriteRegisters(sw.plan.UnitID, baseAddr, sw.fullBlockRegs(s)); err != nil {
			return errors.Wrap(err, "status writer: full block write failed")
		}
		sw.needFull = false
		sw.last = s
		return nil
	}

	// ------------------------------------------------------------
	// Incremental: only slots that changed
	// ------------------------------------------------------------
	prev := status.Encode(sw.last)
	next := status.Encode(s)

	var errs []string
	for slot := 0; slot < status.SlotReservedStart; slot++ {
		if prev[slot] == next[slot] {
			continue
		}
		if err := sw.cli.WriteRegisters(sw.plan.UnitID, baseAddr+uint16(slot), []uint16{next[slot]}); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d write failed: %v", slot, err))
		}
	}

	if len(errs) > 0 {
		// Any partial failure introduces doubt, re-assert on next write.
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}

	sw.last = s
	return nil
}

func (sw *deviceStatusWriter) baseAddr() uint16 {
	// Each device owns a fixed SlotsPerDevice block.
	return sw.plan.BaseSlot * status.SlotsPerDevice
}

func (sw *deviceStatusWriter) fullBlockRegs(s status.Snapshot) []uint16 {
	regs := status.Encode(s)

	// Device name always lives at the end of the block
	copy(regs[status.SlotDeviceNameStart:status.SlotDeviceNameEnd+1], sw.nameRegs)

	return regs
}
