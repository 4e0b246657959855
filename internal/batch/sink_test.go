package batch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dyluth/microbundle/pkg/gep"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildBundle(t *testing.T, id string) *gep.Bundle {
	t.Helper()
	b, err := newTestBuilder(t).Build(newTemplate(id))
	require.NoError(t, err)
	return b
}

func TestFileSink_WriteBundle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	bundle := buildBundle(t, "t1")
	require.NoError(t, sink.WriteBundle(context.Background(), bundle))

	for _, suffix := range []string{GeneSuffix, CapsuleSuffix, EventSuffix, EnvelopeSuffix} {
		data, err := os.ReadFile(filepath.Join(dir, "t1"+suffix))
		require.NoError(t, err, suffix)
		assert.True(t, strings.HasSuffix(string(data), "}\n"), "%s must end with a newline", suffix)
		assert.True(t, strings.HasPrefix(string(data), "{\n  \""), "%s must be indented by two spaces", suffix)
	}

	t.Run("records keep field order and re-verify", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(dir, "t1"+GeneSuffix))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "{\n  \"type\": \"Gene\",\n  \"id\": "))
		assert.Contains(t, string(data), "\n  \"asset_id\": \""+bundle.Gene.AssetID+"\"\n}\n")

		record, err := readRecord(filepath.Join(dir, "t1"+GeneSuffix))
		require.NoError(t, err)
		assert.NoError(t, gep.Verify(record))
	})

	t.Run("runtime is written under node", func(t *testing.T) {
		record, err := readRecord(filepath.Join(dir, "t1"+CapsuleSuffix))
		require.NoError(t, err)
		fp, ok := record["env_fingerprint"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "go1.24.0", fp["node"])
		assert.Equal(t, "node_local", fp["node_id"])
	})

	t.Run("validation commands are not HTML-escaped", func(t *testing.T) {
		tmpl := newTemplate("t2")
		tmpl.Validation = []string{"go test ./... && echo <done>"}
		b, err := newTestBuilder(t).Build(tmpl)
		require.NoError(t, err)
		require.NoError(t, sink.WriteBundle(context.Background(), b))

		data, err := os.ReadFile(filepath.Join(dir, "t2"+GeneSuffix))
		require.NoError(t, err)
		assert.Contains(t, string(data), `"go test ./... && echo <done>"`)
		assert.NotContains(t, string(data), `\u0026`)
	})
}

func TestFileSink_RejectsUnsafeIDs(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	for _, id := range []string{"../escape", "a/b", `a\b`, ".."} {
		t.Run(id, func(t *testing.T) {
			bundle := buildBundle(t, id)
			err := sink.WriteBundle(context.Background(), bundle)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "not a valid file name")
		})
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileSink_RefusesRepeatedID(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	first := buildBundle(t, "t1")
	require.NoError(t, sink.WriteBundle(context.Background(), first))

	second := buildBundle(t, "t1")
	second.Gene.Summary = "changed"
	assert.ErrorContains(t, sink.CheckBundle(second), "already written")
	require.Error(t, sink.WriteBundle(context.Background(), second))

	data, err := os.ReadFile(filepath.Join(dir, "t1"+GeneSuffix))
	require.NoError(t, err)
	assert.Contains(t, string(data), first.Gene.AssetID)
	assert.NotContains(t, string(data), "changed")
}

func TestWriteIndex(t *testing.T) {
	dir := t.TempDir()
	a, b := buildBundle(t, "a"), buildBundle(t, "b")
	want := []gep.IndexEntry{a.Index(), b.Index()}

	require.NoError(t, WriteIndex(dir, want))

	data, err := os.ReadFile(filepath.Join(dir, IndexFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "[\n  {\n    \"id\": \"a\",\n    \"category\": \"repair\",\n    \"gene_asset_id\": "))

	var got []gep.IndexEntry
	require.NoError(t, json.Unmarshal(data, &got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("index mismatch (-want +got):\n%s", diff)
	}

	t.Run("empty index is an empty array", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, WriteIndex(dir, nil))
		data, err := os.ReadFile(filepath.Join(dir, IndexFile))
		require.NoError(t, err)
		assert.Equal(t, "[]\n", string(data))
	})
}

type recordingPublisher struct {
	published []string
	err       error
}

func (p *recordingPublisher) PublishBundle(_ context.Context, b *gep.Bundle) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, b.TemplateID)
	return nil
}

func TestPublishSink(t *testing.T) {
	pub := &recordingPublisher{}
	sink := PublishSink{Publisher: pub}

	require.NoError(t, sink.WriteBundle(context.Background(), buildBundle(t, "t1")))
	assert.Equal(t, []string{"t1"}, pub.published)

	pub.err = errors.New("connection refused")
	err := sink.WriteBundle(context.Background(), buildBundle(t, "t2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish: connection refused")
}
