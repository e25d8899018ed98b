package models

// Metadata is the JSON text frame sent immediately before a DataFrame's
// binary payload. Field names and casing are wire contract, not just Go
// convention — browser clients parse this exact shape.
type Metadata struct {
	// TS is milliseconds since the first frame's upstream timestamp for the
	// Ingester session that produced it, not wall-clock or absolute RTP time.
	TS    int64  `json:"ts"`
	Media string `json:"media"`
	Codec string `json:"codec"`
	Type  string `json:"type,omitempty"`
}

// DataFrame is the unit of fan-out from a stream's Ingester to its
// subscribers: a JSON metadata header and an Annex-B framed payload. Once
// constructed it is never mutated — subscribers share the same Payload
// slice, never copy it.
type DataFrame struct {
	Metadata Metadata
	Payload  []byte
}

// IsKeyframe reports whether this frame carries the codec configuration
// prefix ahead of a random-access point.
func (f DataFrame) IsKeyframe() bool {
	return f.Metadata.Type == "keyframe"
}
