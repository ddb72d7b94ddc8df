package app

import (
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/adxl345"

	"firmkit/core"
)

// The HAL buses plug straight into tinygo.org/x/drivers.
var (
	_ drivers.I2C = (*core.I2C)(nil)
	_ drivers.SPI = (*core.SPI)(nil)
)

const (
	accelAddress = 0x53 // SDO/ALT ADDRESS low
	accelRegID   = 0x00
	accelID      = 0xE5
)

// Accel is an optional ADXL345 on the board I2C bus.
type Accel struct {
	bus     drivers.I2C
	sensor  adxl345.Device
	present bool
}

// NewAccel returns an accelerometer handle on bus. Call Probe before use.
func NewAccel(bus drivers.I2C) *Accel {
	return &Accel{bus: bus, sensor: adxl345.New(bus)}
}

// Probe checks the device ID and, when the part answers, configures it
// for measurement at 100 Hz and +/-16 g.
func (a *Accel) Probe() bool {
	var id [1]byte
	a.present = false
	if err := a.bus.Tx(accelAddress, []byte{accelRegID}, id[:]); err != nil || id[0] != accelID {
		return false
	}
	a.sensor.Configure()
	a.sensor.SetRate(adxl345.RATE_100HZ)
	a.sensor.SetRange(adxl345.RANGE_16G)
	a.present = true
	return true
}

// Present reports whether the last Probe found the part.
func (a *Accel) Present() bool {
	return a.present
}

// Read returns one raw sample per axis.
func (a *Accel) Read() (x, y, z int32, err error) {
	if !a.present {
		return 0, 0, 0, core.ErrNotReady
	}
	rx, ry, rz := a.sensor.ReadRawAcceleration()
	return int32(rx), int32(ry), int32(rz), nil
}

// Halt puts the part in standby.
func (a *Accel) Halt() {
	if a.present {
		a.sensor.Halt()
	}
}
