package batch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/microbundle/pkg/gep"
)

// Issue is one problem found in an output directory.
type Issue struct {
	TemplateID string
	File       string
	Message    string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.File, i.Message)
}

// VerifiedBundle is the verification outcome for one index entry.
type VerifiedBundle struct {
	Entry  gep.IndexEntry
	Issues []Issue
}

// OK reports whether the bundle verified cleanly.
func (v *VerifiedBundle) OK() bool { return len(v.Issues) == 0 }

// Report is the outcome of Verify.
type Report struct {
	Dir     string
	Bundles []VerifiedBundle
}

// Issues returns every issue in index order.
func (r *Report) Issues() []Issue {
	var all []Issue
	for _, b := range r.Bundles {
		all = append(all, b.Issues...)
	}
	return all
}

// OK reports whether every bundle verified cleanly.
func (r *Report) OK() bool { return len(r.Issues()) == 0 }

// Verify re-reads a directory written by FileSink and WriteIndex. For every index entry it
// recomputes each record's address, checks it against the record and the index, checks the
// Gene -> Capsule -> EvolutionEvent linkage, and checks the envelope carries the same triple.
// The error is non-nil only when index.json itself cannot be read.
func Verify(dir string) (*Report, error) {
	data, err := os.ReadFile(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	var index []gep.IndexEntry
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse index: %w", err)
	}

	report := &Report{Dir: dir, Bundles: make([]VerifiedBundle, 0, len(index))}
	for _, entry := range index {
		v := VerifiedBundle{Entry: entry}
		v.Issues = verifyEntry(dir, entry)
		report.Bundles = append(report.Bundles, v)
	}
	return report, nil
}

type recordCheck struct {
	suffix string
	kind   gep.AssetType
	want   string
}

func verifyEntry(dir string, entry gep.IndexEntry) []Issue {
	var issues []Issue
	add := func(file, format string, a ...any) {
		issues = append(issues, Issue{TemplateID: entry.ID, File: file, Message: fmt.Sprintf(format, a...)})
	}

	if err := checkFileName(entry.ID); err != nil {
		add(IndexFile, "%v", err)
		return issues
	}

	checks := []recordCheck{
		{GeneSuffix, gep.AssetTypeGene, entry.GeneAssetID},
		{CapsuleSuffix, gep.AssetTypeCapsule, entry.CapsuleAssetID},
		{EventSuffix, gep.AssetTypeEvolutionEvent, entry.EventAssetID},
	}

	records := make([]map[string]any, len(checks))
	for i, c := range checks {
		file := entry.ID + c.suffix
		record, err := readRecord(filepath.Join(dir, file))
		if err != nil {
			add(file, "%v", err)
			continue
		}
		records[i] = record

		if record["type"] != string(c.kind) {
			add(file, "type is %v, expected %s", record["type"], c.kind)
		}
		if err := gep.Verify(record); err != nil {
			add(file, "%v", err)
		}
		if record["asset_id"] != c.want {
			add(file, "asset_id %v does not match index %s", record["asset_id"], c.want)
		}
	}

	gene, capsule, event := records[0], records[1], records[2]
	if gene != nil && capsule != nil && capsule["gene"] != gene["asset_id"] {
		add(entry.ID+CapsuleSuffix, "gene reference %v does not match %v", capsule["gene"], gene["asset_id"])
	}
	if capsule != nil && event != nil && event["capsule_id"] != capsule["asset_id"] {
		add(entry.ID+EventSuffix, "capsule_id %v does not match %v", event["capsule_id"], capsule["asset_id"])
	}
	if gene != nil && event != nil {
		used, _ := event["genes_used"].([]any)
		if len(used) != 1 || used[0] != gene["asset_id"] {
			add(entry.ID+EventSuffix, "genes_used %v must be exactly [%v]", event["genes_used"], gene["asset_id"])
		}
	}

	envFile := entry.ID + EnvelopeSuffix
	if err := verifyEnvelope(filepath.Join(dir, envFile), checks); err != nil {
		add(envFile, "%v", err)
	}

	return issues
}

func verifyEnvelope(path string, checks []recordCheck) error {
	env, err := readRecord(path)
	if err != nil {
		return err
	}
	if env["protocol"] != gep.Protocol || env["message_type"] != gep.MessageTypePublish {
		return fmt.Errorf("not a %s %s envelope", gep.Protocol, gep.MessageTypePublish)
	}

	payload, _ := env["payload"].(map[string]any)
	assets, _ := payload["assets"].([]any)
	if len(assets) != len(checks) {
		return fmt.Errorf("envelope carries %d assets, expected %d", len(assets), len(checks))
	}
	for i, c := range checks {
		asset, ok := assets[i].(map[string]any)
		if !ok {
			return fmt.Errorf("envelope asset %d is not an object", i)
		}
		if asset["type"] != string(c.kind) || asset["asset_id"] != c.want {
			return fmt.Errorf("envelope asset %d is %v %v, expected %s %s", i, asset["type"], asset["asset_id"], c.kind, c.want)
		}
		if err := gep.Verify(asset); err != nil {
			return fmt.Errorf("envelope asset %d: %w", i, err)
		}
	}
	return nil
}

// readRecord decodes a JSON object keeping numbers in their written form.
func readRecord(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file is missing")
		}
		return nil, err
	}
	var record map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return record, nil
}
