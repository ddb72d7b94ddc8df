package sim

// RegisterDevice is a generic I2C slave with a 256-byte register file. The
// first byte of a write selects the register pointer; later bytes are
// stored and the pointer auto-increments, on reads too.
type RegisterDevice struct {
	Regs [256]byte

	// NackAfter, when positive, NACKs the write byte with that index
	// (0 is the register pointer).
	NackAfter int

	ptr     byte
	written int
	starts  int
}

// NewRegisterDevice returns a device with the given register contents.
func NewRegisterDevice(init map[byte]byte) *RegisterDevice {
	d := &RegisterDevice{}
	for r, v := range init {
		d.Regs[r] = v
	}
	return d
}

func (d *RegisterDevice) Start(read bool) {
	d.starts++
	if !read {
		d.written = 0
	}
}

func (d *RegisterDevice) Write(c byte) bool {
	idx := d.written
	d.written++
	if d.NackAfter > 0 && idx == d.NackAfter {
		return false
	}
	if idx == 0 {
		d.ptr = c
		return true
	}
	d.Regs[d.ptr] = c
	d.ptr++
	return true
}

func (d *RegisterDevice) Read() byte {
	c := d.Regs[d.ptr]
	d.ptr++
	return c
}

func (d *RegisterDevice) Stop() {}

// Pointer returns the current register pointer.
func (d *RegisterDevice) Pointer() byte {
	return d.ptr
}

// Starts returns how many times the device was addressed.
func (d *RegisterDevice) Starts() int {
	return d.starts
}

// ADXL345 register map subset.
const (
	ADXL345Address    = 0x53
	adxl345DevID      = 0x00
	adxl345BWRate     = 0x2C
	adxl345PowerCtl   = 0x2D
	adxl345DataFormat = 0x31
	adxl345DataX0     = 0x32
)

// ADXL345 models the accelerometer on an I2C bus.
type ADXL345 struct {
	*RegisterDevice
}

// NewADXL345 returns a part reporting its device id.
func NewADXL345() *ADXL345 {
	return &ADXL345{NewRegisterDevice(map[byte]byte{
		adxl345DevID:  0xE5,
		adxl345BWRate: 0x0A,
	})}
}

// SetAcceleration loads the raw sample registers.
func (a *ADXL345) SetAcceleration(x, y, z int16) {
	for i, v := range [3]int16{x, y, z} {
		a.Regs[adxl345DataX0+2*i] = byte(v)
		a.Regs[adxl345DataX0+2*i+1] = byte(uint16(v) >> 8)
	}
}

// Measuring reports whether firmware set POWER_CTL.Measure.
func (a *ADXL345) Measuring() bool {
	return a.Regs[adxl345PowerCtl]&0x08 != 0
}

// DataFormat returns the DATA_FORMAT register.
func (a *ADXL345) DataFormat() byte {
	return a.Regs[adxl345DataFormat]
}

// Rate returns the BW_RATE register.
func (a *ADXL345) Rate() byte {
	return a.Regs[adxl345BWRate]
}
