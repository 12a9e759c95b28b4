// Package h264 holds the small pieces of H.264 bitstream handling an
// end to end encrypted pipeline needs: locating NAL units in an Annex B
// buffer and escaping encrypted bytes so they cannot alias a start code.
package h264

// NaluType is the five bit nal_unit_type field.
type NaluType byte

const (
	NaluTypeSlice  NaluType = 1
	NaluTypeIdr    NaluType = 5
	NaluTypeSei    NaluType = 6
	NaluTypeSps    NaluType = 7
	NaluTypePps    NaluType = 8
	NaluTypeAud    NaluType = 9
	NaluTypeFiller NaluType = 12
	NaluTypeStapA  NaluType = 24
	NaluTypeFuA    NaluType = 28
)

const naluTypeMask = 0x1F

// ParseNaluType extracts the type from the first byte of a NAL unit.
func ParseNaluType(b byte) NaluType {
	return NaluType(b & naluTypeMask)
}

// NaluIndex locates one NAL unit inside an Annex B buffer.
type NaluIndex struct {
	// StartOffset is the index of the first byte of the start code.
	StartOffset int
	// PayloadStartOffset is the index of the first byte after the start
	// code, i.e. the NAL unit header.
	PayloadStartOffset int
	// PayloadSize is the number of bytes up to the next start code, or to
	// the end of the buffer for the last unit.
	PayloadSize int
}

// FindNaluIndices scans buf for three and four byte start codes and
// returns one index per NAL unit, in stream order. The scan advances three
// bytes at a time on non-zero data so it stays cheap on large frames.
func FindNaluIndices(buf []byte) []NaluIndex {
	var sequences []NaluIndex
	if len(buf) < 3 {
		return sequences
	}

	end := len(buf) - 3
	for i := 0; i < end; {
		if buf[i+2] > 1 {
			i += 3
		} else if buf[i+2] == 1 {
			if buf[i+1] == 0 && buf[i] == 0 {
				index := NaluIndex{StartOffset: i, PayloadStartOffset: i + 3}
				if index.StartOffset > 0 && buf[index.StartOffset-1] == 0 {
					index.StartOffset--
				}
				if n := len(sequences); n > 0 {
					sequences[n-1].PayloadSize = index.StartOffset - sequences[n-1].PayloadStartOffset
				}
				sequences = append(sequences, index)
			}
			i += 3
		} else {
			i++
		}
	}
	if n := len(sequences); n > 0 {
		sequences[n-1].PayloadSize = len(buf) - sequences[n-1].PayloadStartOffset
	}
	return sequences
}
