// Package muxer repackages RTSP-demuxed access units for WebSocket clients:
// it converts AVCC-framed NAL units to Annex-B and builds the Annex-B
// configuration prefix (SPS/PPS or VPS/SPS/PPS) from H.264/H.265 extra-data.
package muxer

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// StartCode is the Annex-B NAL unit delimiter. Every NAL unit in this
// package's output, including configuration NALs, is prefixed with it.
var StartCode = []byte{0x00, 0x00, 0x00, 0x01}

// ConvertAVCCToAnnexB converts a buffer of zero or more 4-byte-length-prefixed
// NAL units into Annex-B framing. It fails on any truncation: a partial
// length prefix, a partial NAL body, or a zero-length NAL are all errors —
// nothing is silently dropped.
func ConvertAVCCToAnnexB(avcc []byte) ([]byte, error) {
	var out bytes.Buffer
	offset := 0

	for offset < len(avcc) {
		if offset+4 > len(avcc) {
			return nil, fmt.Errorf("muxer: truncated AVCC length prefix at offset %d", offset)
		}

		nalSize := binary.BigEndian.Uint32(avcc[offset : offset+4])
		offset += 4

		if nalSize == 0 {
			return nil, fmt.Errorf("muxer: zero-length NAL unit at offset %d", offset-4)
		}
		if offset+int(nalSize) > len(avcc) {
			return nil, fmt.Errorf("muxer: truncated NAL body at offset %d (want %d, have %d)", offset, nalSize, len(avcc)-offset)
		}

		out.Write(StartCode)
		out.Write(avcc[offset : offset+int(nalSize)])
		offset += int(nalSize)
	}

	return out.Bytes(), nil
}
