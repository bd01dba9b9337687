package quotesock

import (
	"testing"
	"time"
)

func TestProtocolOption(t *testing.T) {
	p := infoProtocol(FramingNewline)
	opt := ProtocolOption(p)

	var opts options
	opt(&opts)

	if opts.protocol.Version != "info" || opts.protocol.Framing != FramingNewline {
		t.Errorf("protocol = %+v", opts.protocol)
	}
}

func TestDialTimeoutOption(t *testing.T) {
	opt := DialTimeoutOption(time.Second * 3)

	var opts options
	opt(&opts)

	if opts.dialTimeout != time.Second*3 {
		t.Errorf("dialTimeout = %v, want 3s", opts.dialTimeout)
	}
}

func TestReadTimeoutOption(t *testing.T) {
	opt := ReadTimeoutOption(time.Minute)

	var opts options
	opt(&opts)

	if opts.readTimeout != time.Minute {
		t.Errorf("readTimeout = %v, want %v", opts.readTimeout, time.Minute)
	}
}

func TestMessageMaxSize(t *testing.T) {
	opt := MessageMaxSize(4096)

	var opts options
	opt(&opts)

	if opts.maxReadLength != 4096 {
		t.Errorf("maxReadLength = %d, want 4096", opts.maxReadLength)
	}
}

func TestLoggerOption(t *testing.T) {
	logger := &mockLogger{}
	opt := LoggerOption(logger)

	var opts options
	opt(&opts)

	if opts.logger != logger {
		t.Error("logger not set correctly")
	}
}

func TestOptions_KeepExplicitValues(t *testing.T) {
	opts := options{
		protocol:      infoProtocol(FramingSentinel),
		readTimeout:   time.Second,
		maxReadLength: 64,
	}

	if err := checkOptions(&opts); err != nil {
		t.Fatalf("checkOptions failed: %v", err)
	}

	if opts.protocol.HeaderLength != 8 {
		t.Errorf("HeaderLength = %d, want 8", opts.protocol.HeaderLength)
	}
	if opts.readTimeout != time.Second {
		t.Errorf("readTimeout = %v, want 1s", opts.readTimeout)
	}
	if opts.maxReadLength != 64 {
		t.Errorf("maxReadLength = %d, want 64", opts.maxReadLength)
	}
}
