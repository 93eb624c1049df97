package editorstate

// Base64Codec stores the JSON text of a value as base64. Go strings are UTF-8
// already, so encoding their bytes gives the same payload a browser produces
// with the encodeURIComponent/unescape bridge before btoa.
type Base64Codec struct{}

// Format implements Codec.
func (Base64Codec) Format() Format {
	return FormatBase64
}

// Encode implements Codec.
func (Base64Codec) Encode(v any) (string, error) {
	data, err := marshalJSON(v)
	if err != nil {
		return "", err
	}
	return encodeBase64(data), nil
}

// Decode implements Codec.
func (Base64Codec) Decode(payload string) (Record, error) {
	data, err := decodeBase64(payload)
	if err != nil {
		return nil, &DecodeLayerError{Format: FormatBase64, Layer: LayerBase64, Err: err}
	}
	return decodeRecord(FormatBase64, data)
}
