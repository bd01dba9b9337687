package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Zereker/quotesock"
)

func startFixtureServer(t *testing.T, f *Fixtures) *quotesock.Server {
	t.Helper()

	protocol, err := f.Protocol.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	addr, _ := net.ResolveTCPAddr("tcp", "127.0.0.1:0")
	server, err := quotesock.NewServer(addr, f.Handler(),
		quotesock.ServerLoggerOption(quotesock.DiscardLogger()),
		quotesock.ServerProtocolOption(protocol),
	)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = server.Close()
		<-done
	})

	return server
}

func TestLoadFixtures(t *testing.T) {
	f, err := LoadFixtures("testdata/fixtures.yaml")
	if err != nil {
		t.Fatalf("LoadFixtures failed: %v", err)
	}

	if len(f.Replies) != 3 {
		t.Errorf("len(Replies) = %d, want 3", len(f.Replies))
	}
	if f.Default == nil || f.Default.Type != "9" {
		t.Errorf("Default = %+v", f.Default)
	}
	if f.Protocol.HeaderLength != quotesock.DefaultHeaderLength {
		t.Errorf("protocol default lost: %+v", f.Protocol)
	}
	if !strings.Contains(f.Replies[2].Raw, "\x01") {
		t.Errorf("raw escape not decoded: %q", f.Replies[2].Raw)
	}
}

func TestLoadFixtures_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"nomatch.yaml": "replies:\n  - type: \"0\"\n    body: OK\n",
		"noreply.yaml": "replies:\n  - command: x\n",
		"syntax.yaml":  "replies: [",
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFixtures(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	if _, err := LoadFixtures(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestFixtures_Match(t *testing.T) {
	f := &Fixtures{Replies: []Fixture{
		{Prefix: "kdata", Type: "96"},
		{Command: "kdata all", Type: "1"},
	}}

	if r, _ := f.match("kdata all"); r.Type != "1" {
		t.Errorf("exact match should win over prefix, got %+v", r)
	}
	if r, _ := f.match("kdata 000001.SZ"); r.Type != "96" {
		t.Errorf("prefix match failed, got %+v", r)
	}
	if _, ok := f.match("logout"); ok {
		t.Error("unexpected match without default")
	}

	_, err := f.Handler().Respond(context.Background(), "logout")
	if err == nil {
		t.Error("expected error for an unmatched command")
	}
}

func TestFixtures_Replay(t *testing.T) {
	f, err := LoadFixtures("testdata/fixtures.yaml")
	if err != nil {
		t.Fatalf("LoadFixtures failed: %v", err)
	}
	server := startFixtureServer(t, f)

	protocol, _ := f.Protocol.Build()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := quotesock.Dial(ctx, server.Addr().String(),
		quotesock.ProtocolOption(protocol),
		quotesock.LoggerOption(quotesock.DiscardLogger()),
	)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer session.Close()

	got, err := session.Exchange(ctx, "list_stocks")
	if err != nil {
		t.Fatalf("list_stocks failed: %v", err)
	}
	if want := "00.8.90\x010\x0100000000002OK"; got != want {
		t.Errorf("list_stocks = %q, want %q", got, want)
	}

	got, err = session.Exchange(ctx, "kdata 000001.SZ")
	if err != nil {
		t.Fatalf("kdata failed: %v", err)
	}
	if !strings.HasSuffix(got, "000001.SZ,20260106,11.2,11.6,11.1,11.5") {
		t.Errorf("kdata = %q", got)
	}

	got, err = session.Exchange(ctx, "whatever")
	if err != nil {
		t.Fatalf("default reply failed: %v", err)
	}
	if !strings.HasSuffix(got, "unknown command") {
		t.Errorf("default = %q", got)
	}

	_, err = session.Exchange(ctx, "broken")
	if quotesock.KindOf(err) != quotesock.KindDecompression {
		t.Errorf("broken kind = %v, err = %v", quotesock.KindOf(err), err)
	}
	if !session.IsClosed() {
		t.Error("session should be closed after an undecodable frame")
	}
}
