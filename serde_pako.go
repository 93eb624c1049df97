package editorstate

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// MaxInflatedSize caps the decompressed size of a pako payload.
const MaxInflatedSize = 16 << 20

// PakoCodec deflates the JSON text of a value inside a zlib container at best
// compression and stores the result as base64. The container matches what the
// pako library writes in the browser build.
type PakoCodec struct{}

// Format implements Codec.
func (PakoCodec) Format() Format {
	return FormatPako
}

// Encode implements Codec.
func (PakoCodec) Encode(v any) (string, error) {
	data, err := marshalJSON(v)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	writer, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return "", fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return "", fmt.Errorf("deflate: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("deflate: %w", err)
	}
	return encodeBase64(buf.Bytes()), nil
}

// Decode implements Codec.
func (PakoCodec) Decode(payload string) (Record, error) {
	compressed, err := decodeBase64(payload)
	if err != nil {
		return nil, &DecodeLayerError{Format: FormatPako, Layer: LayerBase64, Err: err}
	}
	data, err := inflate(compressed)
	if err != nil {
		return nil, &DecodeLayerError{Format: FormatPako, Layer: LayerDeflate, Err: err}
	}
	return decodeRecord(FormatPako, data)
}

func inflate(compressed []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	data, err := io.ReadAll(io.LimitReader(reader, MaxInflatedSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxInflatedSize {
		return nil, fmt.Errorf("inflated payload exceeds %d bytes", MaxInflatedSize)
	}
	return data, nil
}
