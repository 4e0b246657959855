package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dyluth/microbundle/pkg/gep"
)

// Output file suffixes, appended to the template id.
const (
	GeneSuffix     = ".gene.json"
	CapsuleSuffix  = ".capsule.json"
	EventSuffix    = ".event.json"
	EnvelopeSuffix = ".publish.request.json"

	IndexFile = "index.json"
)

// FileSink writes each bundle as four JSON files in Dir.
// It refuses a template id it has already written, so one run never overwrites its own output.
type FileSink struct {
	Dir string

	written map[string]bool
}

// NewFileSink creates dir if needed and returns a sink writing into it.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileSink{Dir: dir}, nil
}

// CheckBundle reports whether WriteBundle would accept b's template id.
func (s *FileSink) CheckBundle(b *gep.Bundle) error {
	if err := checkFileName(b.TemplateID); err != nil {
		return err
	}
	if s.written[b.TemplateID] {
		return fmt.Errorf("template id %q was already written in this run", b.TemplateID)
	}
	return nil
}

// WriteBundle encodes all four documents before writing any of them.
func (s *FileSink) WriteBundle(_ context.Context, b *gep.Bundle) error {
	if err := s.CheckBundle(b); err != nil {
		return err
	}

	docs := []struct {
		suffix string
		value  any
	}{
		{GeneSuffix, b.Gene},
		{CapsuleSuffix, b.Capsule},
		{EventSuffix, b.Event},
		{EnvelopeSuffix, b.Envelope},
	}

	encoded := make([][]byte, len(docs))
	for i, d := range docs {
		data, err := marshalIndent(d.value)
		if err != nil {
			return fmt.Errorf("failed to encode %s%s: %w", b.TemplateID, d.suffix, err)
		}
		encoded[i] = data
	}

	for i, d := range docs {
		path := filepath.Join(s.Dir, b.TemplateID+d.suffix)
		if err := os.WriteFile(path, encoded[i], 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	if s.written == nil {
		s.written = make(map[string]bool)
	}
	s.written[b.TemplateID] = true
	return nil
}

// WriteIndex writes index.json into dir. A nil index is written as [].
func WriteIndex(dir string, index []gep.IndexEntry) error {
	if index == nil {
		index = []gep.IndexEntry{}
	}
	data, err := marshalIndent(index)
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	path := filepath.Join(dir, IndexFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Publisher is implemented by *hub.Client.
type Publisher interface {
	PublishBundle(ctx context.Context, b *gep.Bundle) error
}

// PublishSink adapts a Publisher to a Sink.
type PublishSink struct {
	Publisher Publisher
}

func (s PublishSink) WriteBundle(ctx context.Context, b *gep.Bundle) error {
	if err := s.Publisher.PublishBundle(ctx, b); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	return nil
}

// marshalIndent renders v with two-space indentation and a trailing newline, leaving
// '<', '>' and '&' unescaped.
func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func checkFileName(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("template id %q is not a valid file name", id)
	}
	return nil
}
