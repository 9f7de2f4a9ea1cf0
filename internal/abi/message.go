package abi

// MessageLength is the buffer size needed for err's text including the trailing
// NUL, or 0 when there is no message.
func MessageLength(err error) int {
	if err == nil {
		return 0
	}
	return len(err.Error()) + 1
}

// CopyMessage writes err's text and a NUL into buf. It returns the text
// length, 0 when err is nil, or -1 when buf is too small.
func CopyMessage(err error, buf []byte) int {
	if err == nil {
		return 0
	}
	msg := err.Error()
	if len(msg) >= len(buf) {
		return -1
	}
	copy(buf, msg)
	buf[len(msg)] = 0
	return len(msg)
}
