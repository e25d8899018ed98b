package muxer

import (
	"bytes"
	"testing"
)

func TestParseH264ExtraData(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1E}
	pps := []byte{0x68, 0xCE, 0x38, 0x80}

	record := []byte{
		1,                // configurationVersion
		sps[1], sps[2], sps[3], // profile, compat, level
		0xFF, // reserved | lengthSizeMinusOne
		0xE1, // reserved | numOfSequenceParameterSets = 1
		0x00, 0x04,
	}
	record = append(record, sps...)
	record = append(record, 0x01, 0x00, 0x04)
	record = append(record, pps...)

	got, err := ParseH264ExtraData(record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0x00, 0x1E,
		0x00, 0x00, 0x00, 0x01, 0x68, 0xCE, 0x38, 0x80,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestParseH264ExtraDataTruncated(t *testing.T) {
	if _, err := ParseH264ExtraData([]byte{1, 0x42, 0x00, 0x1E, 0xFF}); err == nil {
		t.Fatal("expected error for truncated record")
	}
}

func TestMarshalThenParseH264ExtraDataRoundTrips(t *testing.T) {
	sps := []byte{0x67, 0x64, 0x00, 0x28}
	pps := []byte{0x68, 0xE9, 0x78, 0x32}

	record, err := MarshalH264ExtraData(sps, pps)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	prefix, err := ParseH264ExtraData(record)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	want := append(append([]byte{}, StartCode...), sps...)
	want = append(want, StartCode...)
	want = append(want, pps...)
	if !bytes.Equal(prefix, want) {
		t.Fatalf("got % x, want % x", prefix, want)
	}
}
