// internal/status/encode.go
package status

// Encode converts a Snapshot into the live slots of a device status block.
// Layout is protocol-locked; name slots are left to the writer.
// No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerDevice)

	regs[SlotSessionState] = s.Session
	regs[SlotLastFailureCode] = s.LastFailureCode
	regs[SlotSecondsDegraded] = s.SecondsDegraded
	regs[SlotSegmentIndex] = s.SegmentIndex
	regs[SlotGlobalFramesHi] = uint16(s.GlobalFrames >> 16)
	regs[SlotGlobalFramesLo] = uint16(s.GlobalFrames)
	regs[SlotRecorderState] = s.RecorderState

	return regs
}

// EncodeDeviceName packs up to 16 ASCII characters into 8 uint16 registers.
// Each register stores two ASCII bytes in big-endian order.
func EncodeDeviceName(name string) []uint16 {
	out := make([]uint16, SlotDeviceNameSlots)

	b := []byte(name)
	if len(b) > DeviceNameMaxChars {
		b = b[:DeviceNameMaxChars]
	}

	// sanitize to printable ASCII
	for i := 0; i < len(b); i++ {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}

	for i := 0; i < DeviceNameMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}

	return out
}
