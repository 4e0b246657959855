package gep

import (
	"fmt"
	"math"
	"time"
)

// Builder turns templates into bundles for a single run.
// It holds no mutable state and is safe for concurrent use.
type Builder struct {
	params       RunParams
	now          func() time.Time
	newMessageID func(time.Time) string
	lenient      bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock replaces time.Now. Tests use it to pin record ids and envelope timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// WithMessageIDs replaces NewMessageID.
func WithMessageIDs(gen func(time.Time) string) Option {
	return func(b *Builder) {
		b.newMessageID = gen
	}
}

// Lenient skips required-field validation. Templates missing id or summaries produce
// records with degraded content instead of failing.
func Lenient() Option {
	return func(b *Builder) {
		b.lenient = true
	}
}

// NewBuilder creates a builder for one invocation.
// Returns an error if NodeID is empty.
func NewBuilder(params RunParams, opts ...Option) (*Builder, error) {
	if params.NodeID == "" {
		return nil, fmt.Errorf("node ID cannot be empty")
	}

	b := &Builder{
		params:       params,
		now:          time.Now,
		newMessageID: NewMessageID,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Params returns the run parameters the builder was created with.
func (b *Builder) Params() RunParams {
	return b.params
}

// Build seals Gene, Capsule and EvolutionEvent in dependency order and wraps them in an envelope.
// Either the whole triple is returned or an error; a partially linked bundle is never produced.
//
// A lenient template without an id is named template_<ms>.
func (b *Builder) Build(t Template) (*Bundle, error) {
	return b.build(t, -1)
}

// BuildAt is Build for the template at position in a batch. A lenient template without an id is
// named template_<ms>_<position>, so id-less templates built in the same millisecond stay distinct.
func (b *Builder) BuildAt(t Template, position int) (*Bundle, error) {
	if position < 0 {
		return nil, fmt.Errorf("invalid template position %d", position)
	}
	return b.build(t, position)
}

func (b *Builder) build(t Template, position int) (*Bundle, error) {
	if !b.lenient {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}

	ts := b.now().UnixMilli()
	templateID := t.ID
	if templateID == "" {
		templateID = fmt.Sprintf("template_%d", ts)
		if position >= 0 {
			templateID = fmt.Sprintf("%s_%d", templateID, position)
		}
	}
	category := t.Category
	if category == "" {
		category = CategoryOptimize
	}

	// Step 1: Gene
	gene, err := SealGene(GeneDraft{
		Type:          AssetTypeGene,
		ID:            recordID("gene", templateID, ts),
		SchemaVersion: SchemaVersion,
		Category:      category,
		SignalsMatch:  t.signals(),
		Summary:       fmt.Sprintf("%s Task focus: %s.", orUndefined(t.GeneSummary), b.params.TaskTitle),
		Validation:    t.validation(),
	})
	if err != nil {
		return nil, err
	}

	outcome := Outcome{Status: OutcomeSuccess, Score: t.outcomeScore()}

	// Step 2: Capsule, referencing the sealed Gene
	capsule, err := SealCapsule(CapsuleDraft{
		Type:          AssetTypeCapsule,
		ID:            recordID("capsule", templateID, ts),
		SchemaVersion: SchemaVersion,
		Trigger:       t.trigger(),
		Gene:          gene.AssetID,
		Summary:       fmt.Sprintf("%s Task: %s.", orUndefined(t.CapsuleSummary), b.params.TaskTitle),
		Confidence:    t.confidence(),
		BlastRadius:   t.blastRadius(),
		Outcome:       outcome,
		EnvFingerprint: EnvFingerprint{
			Platform: b.params.Env.Platform,
			Arch:     b.params.Env.Arch,
			Runtime:  b.params.Env.Runtime,
			NodeID:   b.params.NodeID,
		},
		SuccessStreak: orDefault(t.SuccessStreak, DefaultSuccessStreak),
	})
	if err != nil {
		return nil, err
	}

	// Step 3: EvolutionEvent, referencing both
	event, err := SealEvolutionEvent(EvolutionEventDraft{
		Type:           AssetTypeEvolutionEvent,
		ID:             recordID("event", templateID, ts),
		SchemaVersion:  SchemaVersion,
		Intent:         category,
		CapsuleID:      capsule.AssetID,
		GenesUsed:      []string{gene.AssetID},
		Outcome:        outcome,
		MutationsTried: orDefault(t.MutationsTried, DefaultMutationsTried),
		TotalCycles:    orDefault(t.TotalCycles, DefaultTotalCycles),
	})
	if err != nil {
		return nil, err
	}

	// Step 4: envelope
	now := b.now()
	envelope := NewEnvelope(gene, capsule, event, b.params.NodeID, now, b.newMessageID(now))

	return &Bundle{
		TemplateID: templateID,
		Category:   t.Category,
		Gene:       gene,
		Capsule:    capsule,
		Event:      event,
		Envelope:   envelope,
	}, nil
}

// recordID builds the human-readable id shared by a triple, e.g. "gene_t1_1700000000000".
func recordID(role, templateID string, ts int64) string {
	return fmt.Sprintf("%s_%s_%d", role, templateID, ts)
}

func (t *Template) signals() []string {
	return copyStrings(t.SignalsMatch)
}

func (t *Template) trigger() []string {
	if len(t.Trigger) == 0 {
		return t.signals()
	}
	return copyStrings(t.Trigger)
}

func (t *Template) validation() []string {
	if len(t.Validation) == 0 {
		return []string{DefaultValidation}
	}
	return copyStrings(t.Validation)
}

// Zero and NaN count as unset for numeric fields.
func (t *Template) confidence() float64 {
	if t.Confidence == 0 || math.IsNaN(t.Confidence) {
		return DefaultConfidence
	}
	return t.Confidence
}

func (t *Template) outcomeScore() float64 {
	if t.OutcomeScore != 0 && !math.IsNaN(t.OutcomeScore) {
		return t.OutcomeScore
	}
	return t.confidence()
}

func (t *Template) blastRadius() BlastRadius {
	br := BlastRadius{Files: DefaultBlastFiles, Lines: DefaultBlastLines}
	if t.BlastRadius != nil {
		if t.BlastRadius.Files != 0 {
			br.Files = t.BlastRadius.Files
		}
		if t.BlastRadius.Lines != 0 {
			br.Lines = t.BlastRadius.Lines
		}
	}
	return br
}

// orUndefined renders a missing summary the way other gep-a2a generators do, keeping lenient
// addresses interoperable.
func orUndefined(s string) string {
	if s == "" {
		return "undefined"
	}
	return s
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// copyStrings detaches records from the caller's template slices.
func copyStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
