package editorstate

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownFormat matches UnknownFormatError through errors.Is.
	ErrUnknownFormat = errors.New("editorstate: unknown serde type")
	// ErrDecodeLayer matches DecodeLayerError through errors.Is.
	ErrDecodeLayer = errors.New("editorstate: token payload could not be decoded")
	// ErrRuleViolation matches RuleViolationError through errors.Is.
	ErrRuleViolation = errors.New("editorstate: load rule rejected state")
)

// UnknownFormatError reports a token tag, or a requested format, with no
// registered codec. It signals a version mismatch rather than corrupt data.
type UnknownFormatError struct {
	Format string
}

func (e *UnknownFormatError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("editorstate: unknown serde type: %s", e.Format)
}

// Is lets errors.Is match ErrUnknownFormat.
func (e *UnknownFormatError) Is(target error) bool {
	return target == ErrUnknownFormat
}

// Decode layers reported by DecodeLayerError.
const (
	LayerBase64  = "base64"
	LayerDeflate = "deflate"
	LayerUTF8    = "utf8"
	LayerJSON    = "json"
)

// DecodeLayerError captures a failure inside a codec while turning a payload
// back into a record.
type DecodeLayerError struct {
	Format Format
	Layer  string
	Err    error
}

func (e *DecodeLayerError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("editorstate: %s payload: %s layer: %v", e.Format, e.Layer, e.Err)
}

func (e *DecodeLayerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is match ErrDecodeLayer.
func (e *DecodeLayerError) Is(target error) bool {
	return target == ErrDecodeLayer
}

// RuleViolationError reports a load rule that did not accept the reconciled
// state.
type RuleViolationError struct {
	Rule   string
	Engine string
	Result any
}

func (e *RuleViolationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("editorstate: %s rule %q returned %v", e.Engine, e.Rule, e.Result)
}

// Is lets errors.Is match ErrRuleViolation.
func (e *RuleViolationError) Is(target error) bool {
	return target == ErrRuleViolation
}

// IsUntrustedToken reports whether err means the token cannot be trusted:
// either its format is unknown or its payload is damaged below the JSON layer.
func IsUntrustedToken(err error) bool {
	return errors.Is(err, ErrUnknownFormat) || errors.Is(err, ErrDecodeLayer)
}

func wrapDecodeError(format Format, layer string, err error) error {
	if err == nil {
		return nil
	}
	var layerErr *DecodeLayerError
	if errors.As(err, &layerErr) {
		if layerErr.Format == "" {
			layerErr.Format = format
		}
		return layerErr
	}
	return &DecodeLayerError{Format: format, Layer: layer, Err: err}
}
