package zcore

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func wrapInBlorb(chunkType string, body []uint8) []uint8 {
	var out []uint8
	out = append(out, "FORM"...)
	out = binary.BigEndian.AppendUint32(out, uint32(4+8+len(body)))
	out = append(out, "IFRS"...)
	out = append(out, chunkType...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
	out = append(out, body...)
	return out
}

func TestUnwrapPassesThroughBareStories(t *testing.T) {
	story := buildStory(3)
	got, err := Unwrap(story)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if !bytes.Equal(got, story) {
		t.Error("bare story was modified")
	}
}

func TestUnwrapExtractsZcodChunk(t *testing.T) {
	story := buildStory(3)
	got, err := Unwrap(wrapInBlorb("ZCOD", story))
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if !bytes.Equal(got, story) {
		t.Error("extracted chunk differs from the story")
	}
}

func TestUnwrapRejectsGlulx(t *testing.T) {
	if _, err := Unwrap(wrapInBlorb("GLUL", make([]uint8, 64))); err == nil {
		t.Error("glulx blorb should be rejected")
	}
}

func TestUnwrapRejectsEmptyContainer(t *testing.T) {
	if _, err := Unwrap(wrapInBlorb("Pict", make([]uint8, 8))); err == nil {
		t.Error("blorb without a ZCOD chunk should be rejected")
	}
}

func TestUnwrapRejectsTruncatedChunk(t *testing.T) {
	wrapped := wrapInBlorb("ZCOD", buildStory(3))
	if _, err := Unwrap(wrapped[:len(wrapped)-10]); err == nil {
		t.Error("truncated chunk should be rejected")
	}
}
