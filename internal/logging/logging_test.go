package logging

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Zereker/quotesock"
)

var _ quotesock.Logger = (*Adapter)(nil)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, true},
		{" WARN ", zerolog.WarnLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"error", zerolog.ErrorLevel, true},
		{"off", zerolog.Disabled, true},
		{"loud", zerolog.InfoLevel, false},
	}

	for _, tt := range tests {
		got, ok := ParseLevel(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	a := Adapt(zerolog.New(&buf))

	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 10030}
	a.Warn("quote exchange failed", "addr", addr, "error", errors.New("boom"), "bytes", 12)

	out := buf.String()
	for _, want := range []string{
		`"level":"warn"`,
		`"message":"quote exchange failed"`,
		`"addr":"127.0.0.1:10030"`,
		`"error":"boom"`,
		`"bytes":12`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %s lacks %s", out, want)
		}
	}
}

func TestAdapter_OddArgs(t *testing.T) {
	var buf bytes.Buffer
	a := Adapt(zerolog.New(&buf))

	a.Info("odd", "dangling")

	if !strings.Contains(buf.String(), `"!BADKEY":"dangling"`) {
		t.Errorf("output = %s", buf.String())
	}
}

func TestAdapter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	a := Adapt(zerolog.New(&buf).Level(zerolog.WarnLevel))

	a.Debug("hidden")
	a.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output below warn, got %s", buf.String())
	}

	a.Error("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("output = %s", buf.String())
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	l := New("quotectl", "debug", &buf)

	l.Debug().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, "hello") || !strings.Contains(out, "quotectl") {
		t.Errorf("output = %q", out)
	}
}

func TestNew_UnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("quotectl", "chatty", &buf)

	if l.GetLevel() != zerolog.InfoLevel {
		t.Errorf("level = %v, want info", l.GetLevel())
	}
}
