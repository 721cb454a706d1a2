package ptime

import "encoding/binary"

// TimestampWireLen is the size in bytes of the big-endian PTP wire
// timestamp: u48 seconds || u32 nanoseconds.
const TimestampWireLen = 10

// CorrectionWireLen is the size in bytes of the big-endian PTP
// correctionField carrying the subnanosecond residual.
const CorrectionWireLen = 8

// EncodeTimestamp writes the 10-byte big-endian (seconds, nanoseconds)
// wire form of t into dst, which must be at least TimestampWireLen
// bytes.
func EncodeTimestamp(t Time, dst []byte) {
	_ = dst[TimestampWireLen-1]
	secs := t.FieldSeconds()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], secs)
	copy(dst[0:6], buf[2:8])
	binary.BigEndian.PutUint32(dst[6:10], t.FieldNanoseconds())
}

// DecodeTimestamp reads the 10-byte big-endian (seconds, nanoseconds)
// wire form from src and returns a Time with zero subnanosecond
// residual.
func DecodeTimestamp(src []byte) Time {
	_ = src[TimestampWireLen-1]
	var buf [8]byte
	copy(buf[2:8], src[0:6])
	secs := int64(binary.BigEndian.Uint64(buf[:]))
	nsec := int64(binary.BigEndian.Uint32(src[6:10]))
	return FromFields(secs, nsec, 0)
}

// EncodeCorrection writes the 8-byte big-endian signed subnanosecond
// correctionField into dst, which must be at least CorrectionWireLen
// bytes.
func EncodeCorrection(residualSubns int64, dst []byte) {
	_ = dst[CorrectionWireLen-1]
	binary.BigEndian.PutUint64(dst[0:8], uint64(residualSubns))
}

// DecodeCorrection reads the 8-byte big-endian signed subnanosecond
// correctionField from src.
func DecodeCorrection(src []byte) int64 {
	_ = src[CorrectionWireLen-1]
	return int64(binary.BigEndian.Uint64(src[0:8]))
}

// EncodeFull serializes t as a 10-byte timestamp followed by an 8-byte
// correctionField carrying the subnanosecond residual, matching the
// external wire interface in full.
func EncodeFull(t Time, dst []byte) {
	EncodeTimestamp(t, dst[0:TimestampWireLen])
	EncodeCorrection(t.FieldSubnsResidual(), dst[TimestampWireLen:TimestampWireLen+CorrectionWireLen])
}

// DecodeFull parses the combined timestamp+correctionField wire form
// produced by EncodeFull.
func DecodeFull(src []byte) Time {
	ts := DecodeTimestamp(src[0:TimestampWireLen])
	residual := DecodeCorrection(src[TimestampWireLen : TimestampWireLen+CorrectionWireLen])
	return FromFields(int64(ts.FieldSeconds()), int64(ts.FieldNanoseconds()), residual)
}
