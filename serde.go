package editorstate

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// Format is the tag in front of a token payload naming the codec that wrote it.
type Format string

const (
	// FormatBase64 is plain JSON wrapped in base64.
	FormatBase64 Format = "base64"
	// FormatPako is zlib-compressed JSON wrapped in base64.
	FormatPako Format = "pako"
	// DefaultFormat is used when no format is requested.
	DefaultFormat = FormatPako
)

// Codec maps a value to a text payload and back for one encoding scheme.
// Implementations must be pure and deterministic: equal input, equal output.
type Codec interface {
	Format() Format
	Encode(v any) (string, error)
	Decode(payload string) (Record, error)
}

// Registry routes tokens to the codec named by their tag.
type Registry struct {
	mu     sync.RWMutex
	codecs map[Format]Codec
}

// NewRegistry constructs a registry holding the supplied codecs.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[Format]Codec, len(codecs))}
	for _, codec := range codecs {
		if codec == nil {
			continue
		}
		r.codecs[codec.Format()] = codec
	}
	return r
}

// DefaultRegistry returns a registry preloaded with the base64 and pako codecs.
func DefaultRegistry() *Registry {
	return NewRegistry(Base64Codec{}, PakoCodec{})
}

// Register adds codec, replacing any codec registered for the same format.
func (r *Registry) Register(codec Codec) error {
	if codec == nil {
		return fmt.Errorf("editorstate: codec is nil")
	}
	format := codec.Format()
	if format == "" || strings.Contains(string(format), ":") {
		return fmt.Errorf("editorstate: invalid codec format %q", format)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codecs == nil {
		r.codecs = make(map[Format]Codec)
	}
	r.codecs[format] = codec
	return nil
}

// Lookup returns the codec registered for format.
func (r *Registry) Lookup(format Format) (Codec, error) {
	r.mu.RLock()
	codec := r.codecs[format]
	r.mu.RUnlock()
	if codec == nil {
		return nil, &UnknownFormatError{Format: string(format)}
	}
	return codec, nil
}

// Formats returns the registered formats sorted alphabetically.
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	formats := make([]Format, 0, len(r.codecs))
	for format := range r.codecs {
		formats = append(formats, format)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}

// Encode serialises v with the codec for format and returns the tagged token.
// An empty format selects DefaultFormat.
func (r *Registry) Encode(v any, format Format) (string, error) {
	if format == "" {
		format = DefaultFormat
	}
	codec, err := r.Lookup(format)
	if err != nil {
		return "", err
	}
	payload, err := codec.Encode(v)
	if err != nil {
		return "", fmt.Errorf("editorstate: encode %s: %w", format, err)
	}
	return string(format) + ":" + payload, nil
}

// Decode reads the tag of token and hands the payload to the matching codec.
func (r *Registry) Decode(token string) (Record, Format, error) {
	format, payload := SplitToken(token)
	codec, err := r.Lookup(format)
	if err != nil {
		return nil, format, err
	}
	record, err := codec.Decode(payload)
	if err != nil {
		return nil, format, wrapDecodeError(format, LayerJSON, err)
	}
	return record, format, nil
}

// SplitToken separates a token into its format tag and payload. The tag runs
// up to the first colon. Tokens without any colon predate tagging and are
// read as base64.
func SplitToken(token string) (Format, string) {
	tag, payload, found := strings.Cut(token, ":")
	if !found {
		return FormatBase64, token
	}
	return Format(tag), payload
}

var errMixedAlphabet = errors.New("mixed standard and URL base64 alphabets")

// decodeBase64 accepts the standard or the URL alphabet, padded or not. Padding
// is only allowed at the end and one payload may not mix both alphabets.
func decodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimRight(strings.TrimSpace(payload), "=")
	standard := strings.ContainsAny(payload, "+/")
	if standard && strings.ContainsAny(payload, "-_") {
		return nil, errMixedAlphabet
	}
	if standard {
		return base64.RawStdEncoding.DecodeString(payload)
	}
	return base64.RawURLEncoding.DecodeString(payload)
}

func encodeBase64(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

var errNotObject = errors.New("payload is not a JSON object")

// decodeRecord validates the UTF-8 JSON text of a payload and splits it into a
// Record.
func decodeRecord(format Format, data []byte) (Record, error) {
	if !utf8.Valid(data) {
		return nil, &DecodeLayerError{Format: format, Layer: LayerUTF8, Err: errors.New("invalid UTF-8 sequence")}
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &DecodeLayerError{Format: format, Layer: LayerJSON, Err: err}
	}
	if record == nil {
		return nil, &DecodeLayerError{Format: format, Layer: LayerJSON, Err: errNotObject}
	}
	return record, nil
}
