package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestChunkRoundTrip(t *testing.T) {
	original := Chunk{Ref: "01HZX", Field: "avatar", Seq: 3, Data: []byte{0, 1, 2, 0xff}}

	frame, err := EncodeChunk(original)
	if err != nil {
		t.Fatalf("EncodeChunk failed: %v", err)
	}

	decoded, err := DecodeChunk(frame)
	if err != nil {
		t.Fatalf("DecodeChunk failed: %v", err)
	}

	if decoded.Ref != original.Ref || decoded.Field != original.Field || decoded.Seq != original.Seq {
		t.Errorf("DecodeChunk() = %+v, want %+v", decoded, original)
	}
	if !bytes.Equal(decoded.Data, original.Data) {
		t.Errorf("Data mismatch: got %v, want %v", decoded.Data, original.Data)
	}
}

func TestDecodeChunkRejectsOtherFrames(t *testing.T) {
	if _, err := DecodeChunk([]byte("not msgpack at all")); !errors.Is(err, ErrInvalidChunk) {
		t.Errorf("expected ErrInvalidChunk for garbage, got %v", err)
	}

	other, err := msgpack.Marshal(map[string]any{"t": "click", "i": 1})
	if err != nil {
		t.Fatalf("msgpack.Marshal failed: %v", err)
	}
	if _, err := DecodeChunk(other); !errors.Is(err, ErrInvalidChunk) {
		t.Errorf("expected ErrInvalidChunk for non-chunk envelope, got %v", err)
	}
}
