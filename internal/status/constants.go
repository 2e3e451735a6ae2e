// internal/status/constants.go
package status

// Session Status Block layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of logical slots per device.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotSessionState holds the coordination session state.
const SlotSessionState = 0

// SlotLastFailureCode holds the classified code of the last failed exchange.
const SlotLastFailureCode = 1

// SlotSecondsDegraded holds how long (in seconds) the session has not been connected.
const SlotSecondsDegraded = 2

// SlotSegmentIndex holds the index of the segment being written.
const SlotSegmentIndex = 3

// SlotGlobalFramesHi and SlotGlobalFramesLo hold the persisted frame count
// as a big-endian 32-bit value.
const (
	SlotGlobalFramesHi = 4
	SlotGlobalFramesLo = 5
)

// SlotRecorderState holds the capture controller state.
const SlotRecorderState = 6

// ---- RESERVED RANGE ----

// Slots 7-10 are reserved for future use.
const SlotReservedStart = 7
const SlotReservedEnd = 10

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// Device name is always placed at the END of the status block.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// ---- SESSION STATES ----

// SessionUnknown is the boot state, before the first exchange.
const SessionUnknown uint16 = 0

// SessionConnected means the last exchange succeeded.
const SessionConnected uint16 = 1

// SessionDegraded means the recorder runs on local timestamps.
const SessionDegraded uint16 = 2

// SessionDisconnected means the session was closed.
const SessionDisconnected uint16 = 3
