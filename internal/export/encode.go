package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ErrUnsupportedFormat is returned for unknown format names.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat maps a query value to a Format. Empty selects JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCBOR:
		return FormatCBOR, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
	}
}

// ContentType returns the HTTP media type of the format.
func (f Format) ContentType() string {
	if f == FormatCBOR {
		return "application/cbor"
	}
	return "application/json"
}

// Extension returns the file extension used for archived exports.
func (f Format) Extension() string {
	if f == FormatCBOR {
		return ".cbor"
	}
	return ".json"
}

// Encode writes the result in the given format.
func Encode(w io.Writer, f Format, res Result) error {
	switch f {
	case FormatJSON:
		if err := json.NewEncoder(w).Encode(res); err != nil {
			return fmt.Errorf("failed to encode JSON export: %w", err)
		}
	case FormatCBOR:
		if err := cbor.NewEncoder(w).Encode(res); err != nil {
			return fmt.Errorf("failed to encode CBOR export: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	return nil
}
