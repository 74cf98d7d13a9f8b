package protocol

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrInvalidChunk is returned when a binary frame is not an upload chunk.
var ErrInvalidChunk = errors.New("protocol: invalid upload chunk")

// Chunk is one slice of an uploaded file. Ref ties the chunk to the upload
// primer envelope that announced the file; Seq starts at 0.
type Chunk struct {
	Ref   string `msgpack:"r"`
	Field string `msgpack:"f"`
	Seq   int    `msgpack:"s"`
	Data  []byte `msgpack:"b"`
}

// binaryEnvelope mirrors the text envelope for binary frames.
type binaryEnvelope struct {
	T string `msgpack:"t"`
	I uint64 `msgpack:"i"`
	D Chunk  `msgpack:"d"`
}

// EncodeChunk packs a chunk into a binary frame.
func EncodeChunk(c Chunk) ([]byte, error) {
	packed, err := msgpack.Marshal(&binaryEnvelope{T: TypeUploadChunk, D: c})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode chunk %s/%d: %w", c.Ref, c.Seq, err)
	}
	return packed, nil
}

// DecodeChunk unpacks a binary frame produced by EncodeChunk.
func DecodeChunk(frame []byte) (Chunk, error) {
	var e binaryEnvelope
	if err := msgpack.Unmarshal(frame, &e); err != nil {
		return Chunk{}, fmt.Errorf("%w: %v", ErrInvalidChunk, err)
	}
	if e.T != TypeUploadChunk {
		return Chunk{}, fmt.Errorf("%w: type %q", ErrInvalidChunk, e.T)
	}
	return e.D, nil
}
