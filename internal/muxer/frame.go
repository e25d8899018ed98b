package muxer

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"

	"rtsp2ws/pkg/models"
)

// IsH264IDRNAL reports whether a single raw H.264 NAL unit (no start code)
// is an IDR slice.
func IsH264IDRNAL(nal []byte) bool {
	return len(nal) > 0 && h264.NALUType(nal[0]&0x1F) == h264.NALUTypeIDR
}

// IsH265KeyframeNAL reports whether a single raw H.265 NAL unit (no start
// code) is an IDR or CRA slice, i.e. a random-access point.
func IsH265KeyframeNAL(nal []byte) bool {
	if len(nal) == 0 {
		return false
	}
	typ := h265.NALUType((nal[0] >> 1) & 0b111111)
	return typ == h265.NALUType_IDR_W_RADL || typ == h265.NALUType_IDR_N_LP || typ == h265.NALUType_CRA_NUT
}

// BuildDataFrame assembles the DataFrame for one access unit: timestamp and
// codec metadata, the configuration prefix prepended only at a keyframe,
// then the AVCC→Annex-B conversion of the access unit itself.
func BuildDataFrame(ts int64, codec string, configPrefix []byte, isKeyframe bool, avcc []byte) (models.DataFrame, error) {
	annexB, err := ConvertAVCCToAnnexB(avcc)
	if err != nil {
		return models.DataFrame{}, err
	}

	meta := models.Metadata{TS: ts, Media: "video", Codec: codec}

	if !isKeyframe {
		return models.DataFrame{Metadata: meta, Payload: annexB}, nil
	}

	meta.Type = "keyframe"
	payload := make([]byte, 0, len(configPrefix)+len(annexB))
	payload = append(payload, configPrefix...)
	payload = append(payload, annexB...)
	return models.DataFrame{Metadata: meta, Payload: payload}, nil
}
