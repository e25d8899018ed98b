package muxer

import (
	"bytes"
	"testing"
)

func TestConvertAVCCToAnnexBSingleNAL(t *testing.T) {
	in := []byte{0x00, 0x00, 0x00, 0x05, 0x61, 0x88, 0x00, 0x02, 0x00}
	want := []byte{0x00, 0x00, 0x00, 0x01, 0x61, 0x88, 0x00, 0x02, 0x00}

	got, err := ConvertAVCCToAnnexB(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestConvertAVCCToAnnexBTwoNALs(t *testing.T) {
	in := []byte{
		0x00, 0x00, 0x00, 0x02, 0x67, 0x42,
		0x00, 0x00, 0x00, 0x03, 0x68, 0xCE, 0x01,
	}
	want := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42,
		0x00, 0x00, 0x00, 0x01, 0x68, 0xCE, 0x01,
	}

	got, err := ConvertAVCCToAnnexB(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestConvertAVCCToAnnexBTruncatedBody(t *testing.T) {
	in := []byte{0x00, 0x00, 0x00, 0x05, 0x61, 0x88}

	if _, err := ConvertAVCCToAnnexB(in); err == nil {
		t.Fatal("expected error for truncated NAL body")
	}
}

func TestConvertAVCCToAnnexBTruncatedLength(t *testing.T) {
	in := []byte{0x00, 0x00, 0x00, 0x05, 0x61, 0x88, 0x00, 0x02, 0x00, 0x00, 0x00}

	if _, err := ConvertAVCCToAnnexB(in); err == nil {
		t.Fatal("expected error for trailing partial length prefix")
	}
}

func TestConvertAVCCToAnnexBZeroLengthNAL(t *testing.T) {
	in := []byte{0x00, 0x00, 0x00, 0x00}

	if _, err := ConvertAVCCToAnnexB(in); err == nil {
		t.Fatal("expected error for zero-length NAL")
	}
}

func TestConvertAVCCToAnnexBEmpty(t *testing.T) {
	got, err := ConvertAVCCToAnnexB(nil)
	if err != nil {
		t.Fatalf("unexpected error on empty input: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty output, got % x", got)
	}
}
