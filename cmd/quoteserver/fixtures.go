package main

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Zereker/quotesock"
	"github.com/Zereker/quotesock/internal/config"
)

// Fixtures is a replay script: the framing to speak and the canned replies.
type Fixtures struct {
	Protocol config.Protocol `yaml:"protocol"`
	Replies  []Fixture       `yaml:"replies"`
	// Default answers commands no reply matches. Without it they close the
	// connection.
	Default *Fixture `yaml:"default"`
}

// Fixture matches a command exactly or by prefix. Raw, when set, is written
// verbatim; otherwise Type and Body are encoded as a frame.
type Fixture struct {
	Command string `yaml:"command"`
	Prefix  string `yaml:"prefix"`
	Type    string `yaml:"type"`
	Body    string `yaml:"body"`
	Raw     string `yaml:"raw"`
}

// LoadFixtures reads a YAML fixture file over the default protocol and checks
// that every reply can be matched and answered.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read fixtures")
	}

	f := &Fixtures{Protocol: config.Default().Quote.Protocol}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, errors.Wrap(err, "parse fixtures")
	}

	for i, r := range f.Replies {
		if r.Command == "" && r.Prefix == "" {
			return nil, errors.Errorf("reply %d has neither command nor prefix", i)
		}
		if r.Raw == "" && r.Type == "" {
			return nil, errors.Errorf("reply %d has neither raw nor type", i)
		}
	}
	return f, nil
}

func (f *Fixtures) match(command string) (Fixture, bool) {
	for _, r := range f.Replies {
		if r.Command != "" && r.Command == command {
			return r, true
		}
	}
	for _, r := range f.Replies {
		if r.Prefix != "" && strings.HasPrefix(command, r.Prefix) {
			return r, true
		}
	}
	if f.Default != nil {
		return *f.Default, true
	}
	return Fixture{}, false
}

// Handler answers each command with its matching fixture.
func (f *Fixtures) Handler() quotesock.Handler {
	return quotesock.HandlerFunc(func(_ context.Context, command string) (quotesock.Reply, error) {
		r, ok := f.match(command)
		if !ok {
			return quotesock.Reply{}, errors.Errorf("no fixture for %q", command)
		}
		if r.Raw != "" {
			return quotesock.Reply{Raw: []byte(r.Raw)}, nil
		}
		return quotesock.Reply{Type: r.Type, Body: []byte(r.Body)}, nil
	})
}
