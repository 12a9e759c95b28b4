package h264

const emulationByte = 0x03

// WriteRbsp appends src to dst with emulation prevention applied: after two
// consecutive zeros, a byte of 0x03 or less gets an 0x03 inserted before it.
// Encrypted payload bytes escaped this way can never form a start code.
func WriteRbsp(dst, src []byte) []byte {
	zeros := 0
	for _, b := range src {
		if b <= emulationByte && zeros >= 2 {
			dst = append(dst, emulationByte)
			zeros = 0
		}
		dst = append(dst, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return dst
}

// ParseRbsp undoes WriteRbsp: every 0x03 following two zeros is dropped.
// It returns a fresh slice and leaves src untouched.
func ParseRbsp(src []byte) []byte {
	out := make([]byte, 0, len(src))
	for i := 0; i < len(src); {
		if len(src)-i >= 3 && src[i] == 0 && src[i+1] == 0 && src[i+2] == emulationByte {
			out = append(out, src[i], src[i+1])
			i += 3
		} else {
			out = append(out, src[i])
			i++
		}
	}
	return out
}

// NeedsRbspUnescaping reports whether buf contains an emulation sequence.
func NeedsRbspUnescaping(buf []byte) bool {
	for i := 0; i+2 < len(buf); i++ {
		if buf[i] == 0 && buf[i+1] == 0 && buf[i+2] == emulationByte {
			return true
		}
	}
	return false
}
