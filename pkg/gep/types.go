package gep

import "runtime"

const (
	// SchemaVersion is stamped on every Gene, Capsule and EvolutionEvent.
	SchemaVersion = "1.5.0"

	// Protocol identifies the envelope transport.
	Protocol = "gep-a2a"

	// ProtocolVersion is the envelope protocol version.
	ProtocolVersion = "1.0.0"

	// MessageTypePublish is the only message type this package produces.
	MessageTypePublish = "publish"

	// OutcomeSuccess is the outcome status recorded for generated bundles.
	OutcomeSuccess = "success"

	// DefaultValidation is used when a template has no validation steps.
	DefaultValidation = `node -e "console.log('bundle validation ok')"`
)

// AssetType discriminates the three record kinds.
type AssetType string

const (
	AssetTypeGene           AssetType = "Gene"
	AssetTypeCapsule        AssetType = "Capsule"
	AssetTypeEvolutionEvent AssetType = "EvolutionEvent"
)

// Category values with special meaning. Any other string is accepted as-is.
const (
	CategoryOptimize = "optimize"
	CategoryRepair   = "repair"
)

// Template defaults.
const (
	DefaultConfidence     = 0.9
	DefaultBlastFiles     = 1
	DefaultBlastLines     = 40
	DefaultSuccessStreak  = 3
	DefaultMutationsTried = 2
	DefaultTotalCycles    = 4
)

// Template is a reusable pattern from a template library.
// Zero-valued optional fields are treated as absent and replaced by defaults at build time.
type Template struct {
	ID             string       `json:"id" yaml:"id"`
	Category       string       `json:"category,omitempty" yaml:"category,omitempty"`
	SignalsMatch   []string     `json:"signals_match,omitempty" yaml:"signals_match,omitempty"`
	Trigger        []string     `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	GeneSummary    string       `json:"gene_summary" yaml:"gene_summary"`
	CapsuleSummary string       `json:"capsule_summary" yaml:"capsule_summary"`
	Confidence     float64      `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	BlastRadius    *BlastRadius `json:"blast_radius,omitempty" yaml:"blast_radius,omitempty"`
	OutcomeScore   float64      `json:"outcome_score,omitempty" yaml:"outcome_score,omitempty"`
	SuccessStreak  int          `json:"success_streak,omitempty" yaml:"success_streak,omitempty"`
	MutationsTried int          `json:"mutations_tried,omitempty" yaml:"mutations_tried,omitempty"`
	TotalCycles    int          `json:"total_cycles,omitempty" yaml:"total_cycles,omitempty"`
	Validation     []string     `json:"validation,omitempty" yaml:"validation,omitempty"`
}

// Validate checks the fields a bundle cannot be built without.
func (t *Template) Validate() error {
	if t.ID == "" {
		return &ValidationError{Field: "id"}
	}
	if t.GeneSummary == "" {
		return &ValidationError{TemplateID: t.ID, Field: "gene_summary"}
	}
	if t.CapsuleSummary == "" {
		return &ValidationError{TemplateID: t.ID, Field: "capsule_summary"}
	}
	return nil
}

// BlastRadius estimates how much code a capsule touches.
type BlastRadius struct {
	Files float64 `json:"files" yaml:"files"`
	Lines float64 `json:"lines" yaml:"lines"`
}

// Outcome records how an application of a gene went.
type Outcome struct {
	Status string  `json:"status"`
	Score  float64 `json:"score"`
}

// Environment describes the platform that produced a capsule.
type Environment struct {
	Platform string
	Arch     string
	Runtime  string
}

// LocalEnvironment describes the running process.
func LocalEnvironment() Environment {
	return Environment{
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
		Runtime:  runtime.Version(),
	}
}

// EnvFingerprint is the environment block embedded in a Capsule.
// The runtime version is serialized under "node" for compatibility with existing consumers.
type EnvFingerprint struct {
	Platform string `json:"platform"`
	Arch     string `json:"arch"`
	Runtime  string `json:"node"`
	NodeID   string `json:"node_id"`
}

// RunParams are the per-invocation inputs shared by every template in a batch.
type RunParams struct {
	TaskTitle string
	NodeID    string
	Env       Environment
}

// Asset is a sealed record that can be placed in an envelope.
type Asset interface {
	Kind() AssetType
	Address() string
}

// GeneDraft is a Gene before its address is computed.
type GeneDraft struct {
	Type          AssetType `json:"type"`
	ID            string    `json:"id"`
	SchemaVersion string    `json:"schema_version"`
	Category      string    `json:"category"`
	SignalsMatch  []string  `json:"signals_match"`
	Summary       string    `json:"summary"`
	Validation    []string  `json:"validation"`
}

// Gene is a sealed GeneDraft.
type Gene struct {
	GeneDraft
	AssetID string `json:"asset_id"`
}

func (g Gene) Kind() AssetType { return AssetTypeGene }
func (g Gene) Address() string { return g.AssetID }

// CapsuleDraft is a Capsule before its address is computed.
// Gene must already hold the sealed Gene's address.
type CapsuleDraft struct {
	Type           AssetType      `json:"type"`
	ID             string         `json:"id"`
	SchemaVersion  string         `json:"schema_version"`
	Trigger        []string       `json:"trigger"`
	Gene           string         `json:"gene"`
	Summary        string         `json:"summary"`
	Confidence     float64        `json:"confidence"`
	BlastRadius    BlastRadius    `json:"blast_radius"`
	Outcome        Outcome        `json:"outcome"`
	EnvFingerprint EnvFingerprint `json:"env_fingerprint"`
	SuccessStreak  int            `json:"success_streak"`
}

// Capsule is a sealed CapsuleDraft.
type Capsule struct {
	CapsuleDraft
	AssetID string `json:"asset_id"`
}

func (c Capsule) Kind() AssetType { return AssetTypeCapsule }
func (c Capsule) Address() string { return c.AssetID }

// EvolutionEventDraft is an EvolutionEvent before its address is computed.
type EvolutionEventDraft struct {
	Type           AssetType `json:"type"`
	ID             string    `json:"id"`
	SchemaVersion  string    `json:"schema_version"`
	Intent         string    `json:"intent"`
	CapsuleID      string    `json:"capsule_id"`
	GenesUsed      []string  `json:"genes_used"`
	Outcome        Outcome   `json:"outcome"`
	MutationsTried int       `json:"mutations_tried"`
	TotalCycles    int       `json:"total_cycles"`
}

// EvolutionEvent is a sealed EvolutionEventDraft.
type EvolutionEvent struct {
	EvolutionEventDraft
	AssetID string `json:"asset_id"`
}

func (e EvolutionEvent) Kind() AssetType { return AssetTypeEvolutionEvent }
func (e EvolutionEvent) Address() string { return e.AssetID }

// Fields returns the draft as a generic value for canonical encoding.
// Keys mirror the json tags.
func (d GeneDraft) Fields() map[string]any {
	return map[string]any{
		"type":           string(d.Type),
		"id":             d.ID,
		"schema_version": d.SchemaVersion,
		"category":       d.Category,
		"signals_match":  nonNil(d.SignalsMatch),
		"summary":        d.Summary,
		"validation":     nonNil(d.Validation),
	}
}

// Fields returns the draft as a generic value for canonical encoding.
func (d CapsuleDraft) Fields() map[string]any {
	return map[string]any{
		"type":           string(d.Type),
		"id":             d.ID,
		"schema_version": d.SchemaVersion,
		"trigger":        nonNil(d.Trigger),
		"gene":           d.Gene,
		"summary":        d.Summary,
		"confidence":     d.Confidence,
		"blast_radius": map[string]any{
			"files": d.BlastRadius.Files,
			"lines": d.BlastRadius.Lines,
		},
		"outcome": d.Outcome.fields(),
		"env_fingerprint": map[string]any{
			"platform": d.EnvFingerprint.Platform,
			"arch":     d.EnvFingerprint.Arch,
			"node":     d.EnvFingerprint.Runtime,
			"node_id":  d.EnvFingerprint.NodeID,
		},
		"success_streak": d.SuccessStreak,
	}
}

// Fields returns the draft as a generic value for canonical encoding.
func (d EvolutionEventDraft) Fields() map[string]any {
	return map[string]any{
		"type":            string(d.Type),
		"id":              d.ID,
		"schema_version":  d.SchemaVersion,
		"intent":          d.Intent,
		"capsule_id":      d.CapsuleID,
		"genes_used":      nonNil(d.GenesUsed),
		"outcome":         d.Outcome.fields(),
		"mutations_tried": d.MutationsTried,
		"total_cycles":    d.TotalCycles,
	}
}

func (o Outcome) fields() map[string]any {
	return map[string]any{
		"status": o.Status,
		"score":  o.Score,
	}
}

// nonNil keeps absent sequences encoding as [] rather than null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
