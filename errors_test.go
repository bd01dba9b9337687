package quotesock

import (
	"errors"
	"fmt"
	"io"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

func TestKind_String(t *testing.T) {
	tests := map[Kind]string{
		KindUnknown:       "unknown",
		KindConnection:    "connection",
		KindProtocol:      "protocol",
		KindDecompression: "decompression",
		KindTimeout:       "timeout",
		KindNotConnected:  "not connected",
	}
	for k, want := range tests {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, k.String(), want)
		}
	}
}

func TestKindOf(t *testing.T) {
	err := newError(KindDecompression, "decode", io.ErrUnexpectedEOF)
	wrapped := fmt.Errorf("fetch bars: %w", err)

	if KindOf(wrapped) != KindDecompression {
		t.Errorf("KindOf = %v, want decompression", KindOf(wrapped))
	}
	if KindOf(io.EOF) != KindUnknown {
		t.Errorf("KindOf(io.EOF) = %v, want unknown", KindOf(io.EOF))
	}
	if KindOf(nil) != KindUnknown {
		t.Error("KindOf(nil) should be unknown")
	}
}

func TestError_Unwrap(t *testing.T) {
	err := protocolError("parse header", ErrShortHeader, "got %d bytes", 3)

	if !errors.Is(err, ErrShortHeader) {
		t.Error("errors.Is should find ErrShortHeader")
	}
	if pkgerrors.Cause(err) != ErrShortHeader {
		t.Errorf("Cause = %v, want ErrShortHeader", pkgerrors.Cause(err))
	}
	if err.Error() != "parse header: protocol: got 3 bytes: frame shorter than header" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestErrNotConnected(t *testing.T) {
	if KindOf(ErrNotConnected) != KindNotConnected {
		t.Errorf("KindOf = %v, want not connected", KindOf(ErrNotConnected))
	}
	if ErrNotConnected.Error() != "send: not connected: no session" {
		t.Errorf("Error() = %q", ErrNotConnected.Error())
	}
}
