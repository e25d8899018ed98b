package muxer

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// h265HeaderLen is the fixed-size portion of an HEVCDecoderConfigurationRecord
// preceding the NAL unit arrays (general profile/level/flags fields).
const h265HeaderLen = 22

// ParseH265ExtraData reads an HEVCDecoderConfigurationRecord and returns the
// Annex-B configuration prefix formed by concatenating every NAL unit from
// every array in record order (VPS, SPS, PPS, as the upstream encoder wrote
// them).
func ParseH265ExtraData(record []byte) ([]byte, error) {
	if len(record) < h265HeaderLen+1 {
		return nil, fmt.Errorf("muxer: HEVCDecoderConfigurationRecord too short: %d bytes", len(record))
	}

	offset := h265HeaderLen
	numArrays := int(record[offset])
	offset++

	var out bytes.Buffer
	for a := 0; a < numArrays; a++ {
		if offset+3 > len(record) {
			return nil, fmt.Errorf("muxer: truncated NAL array header in HEVCDecoderConfigurationRecord")
		}
		offset++ // array_completeness(1) | reserved(1) | NAL_unit_type(6), unused here
		numNalus := int(binary.BigEndian.Uint16(record[offset : offset+2]))
		offset += 2

		for n := 0; n < numNalus; n++ {
			if offset+2 > len(record) {
				return nil, fmt.Errorf("muxer: truncated nalUnitLength in HEVCDecoderConfigurationRecord")
			}
			nalLen := int(binary.BigEndian.Uint16(record[offset : offset+2]))
			offset += 2
			if offset+nalLen > len(record) {
				return nil, fmt.Errorf("muxer: truncated NAL body in HEVCDecoderConfigurationRecord")
			}
			out.Write(StartCode)
			out.Write(record[offset : offset+nalLen])
			offset += nalLen
		}
	}

	if out.Len() == 0 {
		return nil, fmt.Errorf("muxer: HEVCDecoderConfigurationRecord carries no NAL units")
	}
	return out.Bytes(), nil
}

// MarshalH265ExtraData builds an HEVCDecoderConfigurationRecord from decoded
// VPS/SPS/PPS NALs, the form gortsplib's format.H265 exposes after SDP fmtp
// parsing. Fields outside the NAL arrays (profile/tier/level, chroma format,
// bit depth) are zeroed: this record is only ever consumed by
// ParseH265ExtraData to rebuild the Annex-B prefix, never by a real decoder.
func MarshalH265ExtraData(vps, sps, pps []byte) ([]byte, error) {
	if len(vps) == 0 || len(sps) == 0 || len(pps) == 0 {
		return nil, fmt.Errorf("muxer: H.265 extra-data requires non-empty VPS, SPS and PPS")
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, h265HeaderLen))
	buf.WriteByte(3) // numOfArrays: VPS, SPS, PPS

	writeArray := func(nalType uint8, nal []byte) {
		buf.WriteByte(0x80 | (nalType & 0x3F)) // array_completeness=1, reserved=0
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], 1) // numNalus
		buf.Write(lenBuf[:])
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(nal)))
		buf.Write(lenBuf[:])
		buf.Write(nal)
	}

	const (
		nalTypeVPS = 32
		nalTypeSPS = 33
		nalTypePPS = 34
	)
	writeArray(nalTypeVPS, vps)
	writeArray(nalTypeSPS, sps)
	writeArray(nalTypePPS, pps)

	return buf.Bytes(), nil
}
