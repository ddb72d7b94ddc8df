package core

// Compile-time configuration shared by the HAL and the application.
const (
	TickRateHz = 1000

	UARTBufferSize = 256
	SPIBufferSize  = 128

	I2CTimeoutMs = 100
	SPITimeoutMs = 100

	HSEClockHz    = 8000000
	HSIClockHz    = 16000000
	SystemClockHz = 168000000
	APB1ClockHz   = SystemClockHz / 4
	APB2ClockHz   = SystemClockHz / 2

	DebugBaudRate = 115200

	VersionMajor = 1
	VersionMinor = 0
	VersionPatch = 0
)

// BuildDate is stamped by the linker:
//
//	-ldflags "-X firmkit/core.BuildDate=2024-05-01"
var BuildDate = "2016-01-01"

// Version returns the firmware version triple as "major.minor.patch".
func Version() string {
	return utoa(VersionMajor) + "." + utoa(VersionMinor) + "." + utoa(VersionPatch)
}
