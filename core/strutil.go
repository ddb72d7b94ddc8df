package core

// utoa converts an unsigned integer to a string without using fmt package
// This is a lightweight alternative for embedded systems
func utoa(n uint32) string {
	if n == 0 {
		return "0"
	}

	var buf [10]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

const hexDigits = "0123456789abcdef"

// hex32 formats n as eight lowercase hex digits
func hex32(n uint32) string {
	var buf [8]byte
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i] = hexDigits[n&0xF]
		n >>= 4
	}
	return string(buf[:])
}
