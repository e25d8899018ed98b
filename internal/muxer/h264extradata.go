package muxer

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ParseH264ExtraData reads an AVCDecoderConfigurationRecord and returns the
// Annex-B configuration prefix: start code + SPS, start code + PPS. Every SPS
// and every PPS the record lists is emitted, in record order; records built
// by MarshalH264ExtraData carry exactly one of each.
func ParseH264ExtraData(record []byte) ([]byte, error) {
	if len(record) < 6 {
		return nil, fmt.Errorf("muxer: AVCDecoderConfigurationRecord too short: %d bytes", len(record))
	}

	// record[0:4] = version, profile, constraints, level
	// record[4]   = reserved(6) | lengthSizeMinusOne(2)
	// record[5]   = reserved(3) | numOfSequenceParameterSets(5)
	numSPS := int(record[5] & 0x1F)
	offset := 6

	var out bytes.Buffer
	for i := 0; i < numSPS; i++ {
		if offset+2 > len(record) {
			return nil, fmt.Errorf("muxer: truncated SPS length in AVCDecoderConfigurationRecord")
		}
		spsLen := int(binary.BigEndian.Uint16(record[offset : offset+2]))
		offset += 2
		if offset+spsLen > len(record) {
			return nil, fmt.Errorf("muxer: truncated SPS body in AVCDecoderConfigurationRecord")
		}
		out.Write(StartCode)
		out.Write(record[offset : offset+spsLen])
		offset += spsLen
	}

	if offset >= len(record) {
		return nil, fmt.Errorf("muxer: AVCDecoderConfigurationRecord missing numOfPictureParameterSets")
	}
	numPPS := int(record[offset])
	offset++

	for i := 0; i < numPPS; i++ {
		if offset+2 > len(record) {
			return nil, fmt.Errorf("muxer: truncated PPS length in AVCDecoderConfigurationRecord")
		}
		ppsLen := int(binary.BigEndian.Uint16(record[offset : offset+2]))
		offset += 2
		if offset+ppsLen > len(record) {
			return nil, fmt.Errorf("muxer: truncated PPS body in AVCDecoderConfigurationRecord")
		}
		out.Write(StartCode)
		out.Write(record[offset : offset+ppsLen])
		offset += ppsLen
	}

	if out.Len() == 0 {
		return nil, fmt.Errorf("muxer: AVCDecoderConfigurationRecord carries no SPS or PPS")
	}
	return out.Bytes(), nil
}

// MarshalH264ExtraData builds an AVCDecoderConfigurationRecord from a single
// decoded SPS/PPS pair, the form gortsplib's format.H264 exposes after SDP
// fmtp parsing. Profile/compatibility/level are copied from the SPS bytes
// themselves, the same fields h264conf.Conf.Marshal derives them from.
func MarshalH264ExtraData(sps, pps []byte) ([]byte, error) {
	if len(sps) < 4 {
		return nil, fmt.Errorf("muxer: SPS too short to derive profile/level: %d bytes", len(sps))
	}

	var buf bytes.Buffer
	buf.WriteByte(1)       // configurationVersion
	buf.WriteByte(sps[1])  // AVCProfileIndication
	buf.WriteByte(sps[2])  // profile_compatibility
	buf.WriteByte(sps[3])  // AVCLevelIndication
	buf.WriteByte(0xFF)    // reserved(6)=111111 | lengthSizeMinusOne(2)=11 (4-byte lengths)
	buf.WriteByte(0xE1)    // reserved(3)=111 | numOfSequenceParameterSets(5)=1

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(sps)))
	buf.Write(lenBuf[:])
	buf.Write(sps)

	buf.WriteByte(1) // numOfPictureParameterSets
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(pps)))
	buf.Write(lenBuf[:])
	buf.Write(pps)

	return buf.Bytes(), nil
}
