// Package quotesock is a client for line-command quote servers that answer
// with a fixed-length text header followed by a plain or zlib-compressed body.
// It also ships a small server that speaks the same framing, used for replaying
// recorded answers.
package quotesock

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Framing selects how the end of a frame is recognized on the wire.
type Framing int

const (
	// FramingSentinel ends every frame with Sentinel. Used by servers that may compress.
	FramingSentinel Framing = iota
	// FramingNewline ends every frame with a single '\n'.
	FramingNewline
)

// Sentinel is the 13-byte terminator used in FramingSentinel mode.
var Sentinel = []byte("<![CDATA[]]>\n")

// Defaults of the public quote server.
const (
	// DefaultHeaderLength is the byte length of the header span.
	DefaultHeaderLength = 21
	// DefaultDelimiter separates header fields.
	DefaultDelimiter    = "\x01"
	// DefaultVersion is header field 0.
	DefaultVersion      = "00.8.90"

	// TypeKDataPlusResponse is the only message type the public server compresses.
	TypeKDataPlusResponse = "96"
)

// ErrInvalidProtocol is returned when a Protocol cannot frame messages.
var ErrInvalidProtocol = errors.New("invalid protocol")

// Protocol describes the header layout and framing of one quote server.
// The zero value is not usable; start from DefaultProtocol.
type Protocol struct {
	// HeaderLength is the fixed byte length of the header span.
	HeaderLength int
	// Delimiter separates header fields.
	Delimiter string
	// Version is written as header field 0 by FormatHeader.
	Version string
	// CompressedTypes lists the message types whose body is zlib-compressed.
	CompressedTypes []string
	Framing         Framing
}

// DefaultProtocol returns the protocol spoken by the public quote server.
func DefaultProtocol() Protocol {
	return Protocol{
		HeaderLength:    DefaultHeaderLength,
		Delimiter:       DefaultDelimiter,
		Version:         DefaultVersion,
		CompressedTypes: []string{TypeKDataPlusResponse},
		Framing:         FramingSentinel,
	}
}

// Validate reports whether p can frame messages.
func (p Protocol) Validate() error {
	if p.HeaderLength <= 0 {
		return errors.Wrap(ErrInvalidProtocol, "header length must be positive")
	}
	if p.Delimiter == "" {
		return errors.Wrap(ErrInvalidProtocol, "empty delimiter")
	}
	if p.Framing != FramingSentinel && p.Framing != FramingNewline {
		return errors.Wrapf(ErrInvalidProtocol, "unknown framing %d", p.Framing)
	}
	return nil
}

func (p Protocol) isZero() bool {
	return p.HeaderLength == 0 && p.Delimiter == "" && p.Version == "" && len(p.CompressedTypes) == 0
}

// Terminator returns the bytes that end a frame.
func (p Protocol) Terminator() []byte {
	if p.Framing == FramingNewline {
		return []byte{'\n'}
	}
	return Sentinel
}

// IsCompressed reports whether messages of type typ carry a compressed body.
func (p Protocol) IsCompressed(typ string) bool {
	for _, t := range p.CompressedTypes {
		if t == typ {
			return true
		}
	}
	return false
}

// EncodeCommand returns the wire form of a command.
func (p Protocol) EncodeCommand(command string) []byte {
	return []byte(command + "\n")
}

// Header is the parsed header span of a frame.
type Header struct {
	// Raw is the header text exactly as received.
	Raw    string
	Fields []string
	Type   string
	// BodyLength is the compressed body length, or -1 for uncompressed types.
	BodyLength int
}

// Compressed reports whether the frame body must be inflated.
func (h Header) Compressed() bool {
	return h.BodyLength >= 0
}

// ParseHeader decodes the header span at the start of frame.
func (p Protocol) ParseHeader(frame []byte) (Header, error) {
	if len(frame) < p.HeaderLength {
		return Header{}, protocolError("parse header", ErrShortHeader, "got %d bytes, need %d", len(frame), p.HeaderLength)
	}

	raw := frame[:p.HeaderLength]
	if !utf8.Valid(raw) {
		return Header{}, protocolError("parse header", ErrInvalidText, "header")
	}

	h := Header{Raw: string(raw), BodyLength: -1}
	h.Fields = strings.Split(h.Raw, p.Delimiter)
	if len(h.Fields) < 2 {
		return Header{}, protocolError("parse header", ErrMalformedHeader, "%d fields", len(h.Fields))
	}
	h.Type = h.Fields[1]

	if !p.IsCompressed(h.Type) {
		return h, nil
	}

	if len(h.Fields) < 3 {
		return Header{}, protocolError("parse header", ErrMalformedHeader, "compressed type %q without length", h.Type)
	}
	n, err := strconv.Atoi(strings.TrimSpace(h.Fields[2]))
	if err != nil || n < 0 {
		return Header{}, protocolError("parse header", ErrBadBodyLength, "%q", h.Fields[2])
	}
	h.BodyLength = n

	return h, nil
}

// Decode turns a complete frame, terminator included, into response text.
//
// For a compressed type the N body bytes after the header are inflated and
// appended to the header text. Anything after them is ignored. For other types
// the frame is returned as text with the terminator removed and the header left
// in place.
func (p Protocol) Decode(frame []byte) (string, error) {
	h, err := p.ParseHeader(frame)
	if err != nil {
		return "", err
	}

	if !h.Compressed() {
		body := bytes.TrimSuffix(frame, p.Terminator())
		if !utf8.Valid(body) {
			return "", protocolError("decode", ErrInvalidText, "body")
		}
		return string(body), nil
	}

	end := p.HeaderLength + h.BodyLength
	if end > len(frame) {
		return "", protocolError("decode", ErrBadBodyLength, "body length %d exceeds frame of %d bytes", h.BodyLength, len(frame)-p.HeaderLength)
	}

	body, err := inflate(frame[p.HeaderLength:end])
	if err != nil {
		return "", newError(KindDecompression, "decode", err)
	}
	if !utf8.Valid(body) {
		return "", protocolError("decode", ErrInvalidText, "inflated body")
	}

	return h.Raw + string(body), nil
}

// FormatHeader builds a header of exactly HeaderLength bytes: version, type and
// a zero-padded body length joined by the delimiter.
func (p Protocol) FormatHeader(typ string, bodyLength int) (string, error) {
	if bodyLength < 0 {
		return "", errors.Errorf("negative body length %d", bodyLength)
	}
	width := p.HeaderLength - len(p.Version) - len(typ) - 2*len(p.Delimiter)
	if width < 1 {
		return "", errors.Errorf("type %q does not fit a %d byte header", typ, p.HeaderLength)
	}

	h := fmt.Sprintf("%s%s%s%s%0*d", p.Version, p.Delimiter, typ, p.Delimiter, width, bodyLength)
	if len(h) != p.HeaderLength {
		return "", errors.Errorf("body length %d does not fit a %d byte header", bodyLength, p.HeaderLength)
	}
	return h, nil
}

// EncodeReply builds a complete response frame. Bodies of compressed types are
// deflated and the header carries the compressed length.
func (p Protocol) EncodeReply(typ string, body []byte) ([]byte, error) {
	payload := body
	if p.IsCompressed(typ) {
		var err error
		if payload, err = deflate(body); err != nil {
			return nil, err
		}
	}

	header, err := p.FormatHeader(typ, len(payload))
	if err != nil {
		return nil, err
	}

	term := p.Terminator()
	frame := make([]byte, 0, len(header)+len(payload)+len(term))
	frame = append(frame, header...)
	frame = append(frame, payload...)
	frame = append(frame, term...)
	return frame, nil
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "open zlib stream")
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "inflate body")
	}
	return out, nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, errors.Wrap(err, "deflate body")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "deflate body")
	}
	return buf.Bytes(), nil
}
