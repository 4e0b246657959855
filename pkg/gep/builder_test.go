package gep

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEnv = Environment{Platform: "linux", Arch: "amd64", Runtime: "go1.24.0"}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

// newTestBuilder creates a builder with a pinned clock and message ids
func newTestBuilder(t *testing.T, title string, opts ...Option) *Builder {
	t.Helper()
	opts = append([]Option{
		WithClock(fixedClock(1700000000000)),
		WithMessageIDs(func(time.Time) string { return "msg_test" }),
	}, opts...)
	b, err := NewBuilder(RunParams{TaskTitle: title, NodeID: "node_local", Env: testEnv}, opts...)
	require.NoError(t, err)
	return b
}

func demoTemplate() Template {
	return Template{
		ID:             "t1",
		Category:       "optimize",
		GeneSummary:    "G",
		CapsuleSummary: "C",
		SignalsMatch:   []string{"latency_high"},
	}
}

func TestNewBuilder(t *testing.T) {
	t.Run("rejects empty node ID", func(t *testing.T) {
		_, err := NewBuilder(RunParams{TaskTitle: "demo"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "node ID cannot be empty")
	})

	t.Run("keeps run params", func(t *testing.T) {
		b := newTestBuilder(t, "demo")
		assert.Equal(t, "demo", b.Params().TaskTitle)
		assert.Equal(t, "node_local", b.Params().NodeID)
	})
}

func TestBuild_DemoScenario(t *testing.T) {
	b := newTestBuilder(t, "demo")

	bundle, err := b.Build(demoTemplate())
	require.NoError(t, err)

	gene := bundle.Gene
	assert.Equal(t, AssetTypeGene, gene.Type)
	assert.Equal(t, SchemaVersion, gene.SchemaVersion)
	assert.Equal(t, "optimize", gene.Category)
	assert.Equal(t, []string{"latency_high"}, gene.SignalsMatch)
	assert.Equal(t, "G Task focus: demo.", gene.Summary)
	assert.Equal(t, []string{DefaultValidation}, gene.Validation)

	capsule := bundle.Capsule
	assert.Equal(t, AssetTypeCapsule, capsule.Type)
	assert.Equal(t, []string{"latency_high"}, capsule.Trigger)
	assert.Equal(t, "C Task: demo.", capsule.Summary)
	assert.Equal(t, 0.9, capsule.Confidence)
	assert.Equal(t, BlastRadius{Files: 1, Lines: 40}, capsule.BlastRadius)
	assert.Equal(t, Outcome{Status: "success", Score: 0.9}, capsule.Outcome)
	assert.Equal(t, 3, capsule.SuccessStreak)
	assert.Equal(t, EnvFingerprint{Platform: "linux", Arch: "amd64", Runtime: "go1.24.0", NodeID: "node_local"}, capsule.EnvFingerprint)

	event := bundle.Event
	assert.Equal(t, AssetTypeEvolutionEvent, event.Type)
	assert.Equal(t, "optimize", event.Intent)
	assert.Equal(t, 2, event.MutationsTried)
	assert.Equal(t, 4, event.TotalCycles)

	ids := []string{gene.AssetID, capsule.AssetID, event.AssetID}
	for _, id := range ids {
		assert.True(t, ValidAddress(id), "address %q has the wrong shape", id)
	}
	assert.NotEqual(t, ids[0], ids[1])
	assert.NotEqual(t, ids[1], ids[2])
	assert.NotEqual(t, ids[0], ids[2])
}

// Addresses below were produced by the reference JavaScript generator for the same inputs.
func TestBuild_MatchesReferenceAddresses(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		bundle, err := newTestBuilder(t, "demo").Build(demoTemplate())
		require.NoError(t, err)

		assert.Equal(t, "sha256:cd183538a554d570e117b55b710d693f473babfefaec673adf30cb4afeb4edd1", bundle.Gene.AssetID)
		assert.Equal(t, "sha256:2ba75eb1beee074718231949310d18cc9a244fa838da4e39205234965111cd14", bundle.Capsule.AssetID)
		assert.Equal(t, "sha256:83758ee8dbd47b1eaef4aefd88802ec4a3983ad8e8767c6fde0a2770eb93577e", bundle.Event.AssetID)
	})

	t.Run("every field set", func(t *testing.T) {
		b := newTestBuilder(t, "harden \"api\"\n", WithClock(fixedClock(1700000000123)))
		bundle, err := b.Build(Template{
			ID:             "r7",
			Category:       "repair",
			GeneSummary:    "Retry with backoff",
			CapsuleSummary: "Wrap flaky call",
			SignalsMatch:   []string{"timeout", "5xx"},
			Trigger:        []string{"timeout"},
			Confidence:     0.75,
			BlastRadius:    &BlastRadius{Files: 3, Lines: 120},
			OutcomeScore:   0.8,
			SuccessStreak:  5,
			MutationsTried: 6,
			TotalCycles:    9,
			Validation:     []string{"go test ./...", "go vet ./..."},
		})
		require.NoError(t, err)

		assert.Equal(t, "sha256:194b4bb71e25eee015b905915a9a4a6325d12618be8ce929b09e1db0d6ed0c14", bundle.Gene.AssetID)
		assert.Equal(t, "sha256:104f22cde2c80c5b8db96b2ae0cf3151b746a3fe5308d57d4d1174cb7e3843d5", bundle.Capsule.AssetID)
		assert.Equal(t, "sha256:196d2a72c3cadc9e2ea3af0bda5c1f9d7947729594103c3499d991dfdc769e2d", bundle.Event.AssetID)
		assert.Equal(t, "repair", bundle.Event.Intent)
		assert.Equal(t, Outcome{Status: "success", Score: 0.8}, bundle.Event.Outcome)
	})
}

func TestBuild_Linkage(t *testing.T) {
	bundle, err := newTestBuilder(t, "demo").Build(demoTemplate())
	require.NoError(t, err)

	assert.Equal(t, bundle.Gene.AssetID, bundle.Capsule.Gene)
	assert.Equal(t, bundle.Capsule.AssetID, bundle.Event.CapsuleID)
	assert.Equal(t, []string{bundle.Gene.AssetID}, bundle.Event.GenesUsed)
}

func TestBuild_SelfExclusion(t *testing.T) {
	bundle, err := newTestBuilder(t, "demo").Build(demoTemplate())
	require.NoError(t, err)

	geneRecord := bundle.Gene.Fields()
	geneRecord["asset_id"] = bundle.Gene.AssetID
	assert.NoError(t, Verify(geneRecord))

	capsuleRecord := bundle.Capsule.Fields()
	capsuleRecord["asset_id"] = bundle.Capsule.AssetID
	assert.NoError(t, Verify(capsuleRecord))

	eventRecord := bundle.Event.Fields()
	eventRecord["asset_id"] = bundle.Event.AssetID
	assert.NoError(t, Verify(eventRecord))
}

func TestBuild_Determinism(t *testing.T) {
	first, err := newTestBuilder(t, "demo").Build(demoTemplate())
	require.NoError(t, err)
	second, err := newTestBuilder(t, "demo").Build(demoTemplate())
	require.NoError(t, err)

	assert.Equal(t, first.Gene.AssetID, second.Gene.AssetID)
	assert.Equal(t, first.Capsule.AssetID, second.Capsule.AssetID)
	assert.Equal(t, first.Event.AssetID, second.Event.AssetID)
}

func TestBuild_FieldChangesPropagate(t *testing.T) {
	base, err := newTestBuilder(t, "demo").Build(demoTemplate())
	require.NoError(t, err)

	t.Run("gene field changes every address", func(t *testing.T) {
		tmpl := demoTemplate()
		tmpl.GeneSummary = "G2"
		changed, err := newTestBuilder(t, "demo").Build(tmpl)
		require.NoError(t, err)

		assert.NotEqual(t, base.Gene.AssetID, changed.Gene.AssetID)
		assert.NotEqual(t, base.Capsule.AssetID, changed.Capsule.AssetID)
		assert.NotEqual(t, base.Event.AssetID, changed.Event.AssetID)
	})

	t.Run("capsule-only field leaves gene address alone", func(t *testing.T) {
		tmpl := demoTemplate()
		tmpl.SuccessStreak = 7
		changed, err := newTestBuilder(t, "demo").Build(tmpl)
		require.NoError(t, err)

		assert.Equal(t, base.Gene.AssetID, changed.Gene.AssetID)
		assert.NotEqual(t, base.Capsule.AssetID, changed.Capsule.AssetID)
		assert.NotEqual(t, base.Event.AssetID, changed.Event.AssetID)
	})

	t.Run("event-only field changes only the event", func(t *testing.T) {
		tmpl := demoTemplate()
		tmpl.TotalCycles = 10
		changed, err := newTestBuilder(t, "demo").Build(tmpl)
		require.NoError(t, err)

		assert.Equal(t, base.Gene.AssetID, changed.Gene.AssetID)
		assert.Equal(t, base.Capsule.AssetID, changed.Capsule.AssetID)
		assert.NotEqual(t, base.Event.AssetID, changed.Event.AssetID)
	})

	t.Run("node id changes the capsule", func(t *testing.T) {
		b, err := NewBuilder(RunParams{TaskTitle: "demo", NodeID: "node_other", Env: testEnv},
			WithClock(fixedClock(1700000000000)))
		require.NoError(t, err)
		changed, err := b.Build(demoTemplate())
		require.NoError(t, err)

		assert.Equal(t, base.Gene.AssetID, changed.Gene.AssetID)
		assert.NotEqual(t, base.Capsule.AssetID, changed.Capsule.AssetID)
	})
}

func TestBuild_ArrayOrderSensitivity(t *testing.T) {
	tmpl := demoTemplate()
	tmpl.SignalsMatch = []string{"a", "b"}
	tmpl.Validation = []string{"check-1", "check-2"}
	base, err := newTestBuilder(t, "demo").Build(tmpl)
	require.NoError(t, err)

	t.Run("signals_match", func(t *testing.T) {
		swapped := tmpl
		swapped.SignalsMatch = []string{"b", "a"}
		out, err := newTestBuilder(t, "demo").Build(swapped)
		require.NoError(t, err)
		assert.NotEqual(t, base.Gene.AssetID, out.Gene.AssetID)
	})

	t.Run("validation", func(t *testing.T) {
		swapped := tmpl
		swapped.Validation = []string{"check-2", "check-1"}
		out, err := newTestBuilder(t, "demo").Build(swapped)
		require.NoError(t, err)
		assert.NotEqual(t, base.Gene.AssetID, out.Gene.AssetID)
	})
}

func TestBuild_TemplatesDifferingOnlyInID(t *testing.T) {
	b := newTestBuilder(t, "demo")
	a := demoTemplate()
	c := demoTemplate()
	c.ID = "t2"

	first, err := b.Build(a)
	require.NoError(t, err)
	second, err := b.Build(c)
	require.NoError(t, err)

	seen := map[string]bool{
		first.Gene.AssetID:    true,
		first.Capsule.AssetID: true,
		first.Event.AssetID:   true,
	}
	for _, id := range []string{second.Gene.AssetID, second.Capsule.AssetID, second.Event.AssetID} {
		assert.False(t, seen[id], "address %s shared between templates", id)
	}
}

func TestBuild_Defaults(t *testing.T) {
	b := newTestBuilder(t, "demo")

	t.Run("empty trigger falls back to signals", func(t *testing.T) {
		tmpl := demoTemplate()
		tmpl.Trigger = []string{}
		bundle, err := b.Build(tmpl)
		require.NoError(t, err)
		assert.Equal(t, []string{"latency_high"}, bundle.Capsule.Trigger)
	})

	t.Run("explicit trigger wins", func(t *testing.T) {
		tmpl := demoTemplate()
		tmpl.Trigger = []string{"manual"}
		bundle, err := b.Build(tmpl)
		require.NoError(t, err)
		assert.Equal(t, []string{"manual"}, bundle.Capsule.Trigger)
		assert.Equal(t, []string{"latency_high"}, bundle.Gene.SignalsMatch)
	})

	t.Run("missing signals encode as empty list", func(t *testing.T) {
		tmpl := demoTemplate()
		tmpl.SignalsMatch = nil
		bundle, err := b.Build(tmpl)
		require.NoError(t, err)
		assert.NotNil(t, bundle.Gene.SignalsMatch)
		assert.Empty(t, bundle.Gene.SignalsMatch)
		assert.NotNil(t, bundle.Capsule.Trigger)
	})

	t.Run("missing category is optimize", func(t *testing.T) {
		tmpl := demoTemplate()
		tmpl.Category = ""
		bundle, err := b.Build(tmpl)
		require.NoError(t, err)
		assert.Equal(t, "optimize", bundle.Gene.Category)
		assert.Equal(t, "optimize", bundle.Event.Intent)
	})

	t.Run("free-form category passes through to intent", func(t *testing.T) {
		tmpl := demoTemplate()
		tmpl.Category = "innovate"
		bundle, err := b.Build(tmpl)
		require.NoError(t, err)
		assert.Equal(t, "innovate", bundle.Event.Intent)
	})

	t.Run("outcome score defaults to confidence", func(t *testing.T) {
		tmpl := demoTemplate()
		tmpl.Confidence = 0.6
		bundle, err := b.Build(tmpl)
		require.NoError(t, err)
		assert.Equal(t, 0.6, bundle.Capsule.Outcome.Score)
		assert.Equal(t, 0.6, bundle.Event.Outcome.Score)
	})

	t.Run("partial blast radius", func(t *testing.T) {
		tmpl := demoTemplate()
		tmpl.BlastRadius = &BlastRadius{Lines: 5}
		bundle, err := b.Build(tmpl)
		require.NoError(t, err)
		assert.Equal(t, BlastRadius{Files: 1, Lines: 5}, bundle.Capsule.BlastRadius)
	})

	t.Run("records do not alias template slices", func(t *testing.T) {
		tmpl := demoTemplate()
		bundle, err := b.Build(tmpl)
		require.NoError(t, err)
		tmpl.SignalsMatch[0] = "mutated"
		assert.Equal(t, "latency_high", bundle.Gene.SignalsMatch[0])
	})
}

func TestBuild_RecordIDs(t *testing.T) {
	bundle, err := newTestBuilder(t, "demo").Build(demoTemplate())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(bundle.Gene.ID, "gene_t1_"))
	assert.True(t, strings.HasPrefix(bundle.Capsule.ID, "capsule_t1_"))
	assert.True(t, strings.HasPrefix(bundle.Event.ID, "event_t1_"))

	suffix := strings.TrimPrefix(bundle.Gene.ID, "gene_t1_")
	assert.Equal(t, suffix, strings.TrimPrefix(bundle.Capsule.ID, "capsule_t1_"))
	assert.Equal(t, suffix, strings.TrimPrefix(bundle.Event.ID, "event_t1_"))
}

func TestBuild_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Template)
		field  string
	}{
		{"missing id", func(tp *Template) { tp.ID = "" }, "id"},
		{"missing gene summary", func(tp *Template) { tp.GeneSummary = "" }, "gene_summary"},
		{"missing capsule summary", func(tp *Template) { tp.CapsuleSummary = "" }, "capsule_summary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := demoTemplate()
			tt.mutate(&tmpl)

			bundle, err := newTestBuilder(t, "demo").Build(tmpl)
			assert.Nil(t, bundle)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	t.Run("error names the template", func(t *testing.T) {
		tmpl := demoTemplate()
		tmpl.CapsuleSummary = ""
		_, err := newTestBuilder(t, "demo").Build(tmpl)
		assert.EqualError(t, err, `invalid template "t1": missing required field "capsule_summary"`)
	})
}

func TestBuild_Lenient(t *testing.T) {
	b := newTestBuilder(t, "demo", Lenient())

	bundle, err := b.Build(Template{SignalsMatch: []string{"x"}})
	require.NoError(t, err)

	assert.Equal(t, "template_1700000000000", bundle.TemplateID)
	assert.Equal(t, "gene_template_1700000000000_1700000000000", bundle.Gene.ID)
	assert.Equal(t, "undefined Task focus: demo.", bundle.Gene.Summary)
	assert.Equal(t, "undefined Task: demo.", bundle.Capsule.Summary)
	assert.Equal(t, bundle.Gene.AssetID, bundle.Capsule.Gene)
}

func TestBuildAt(t *testing.T) {
	t.Run("id-less templates in the same millisecond stay distinct", func(t *testing.T) {
		b := newTestBuilder(t, "demo", Lenient())

		first, err := b.BuildAt(Template{SignalsMatch: []string{"x"}}, 0)
		require.NoError(t, err)
		second, err := b.BuildAt(Template{SignalsMatch: []string{"y"}}, 1)
		require.NoError(t, err)

		assert.Equal(t, "template_1700000000000_0", first.TemplateID)
		assert.Equal(t, "template_1700000000000_1", second.TemplateID)
		assert.Equal(t, "gene_template_1700000000000_1_1700000000000", second.Gene.ID)
	})

	t.Run("explicit id ignores position", func(t *testing.T) {
		bundle, err := newTestBuilder(t, "demo").BuildAt(demoTemplate(), 7)
		require.NoError(t, err)

		want, err := newTestBuilder(t, "demo").Build(demoTemplate())
		require.NoError(t, err)
		assert.Equal(t, "t1", bundle.TemplateID)
		assert.Equal(t, want.Capsule.AssetID, bundle.Capsule.AssetID)
	})

	t.Run("negative position", func(t *testing.T) {
		_, err := newTestBuilder(t, "demo").BuildAt(demoTemplate(), -1)
		assert.Error(t, err)
	})
}

func TestBuild_NonFiniteNumbers(t *testing.T) {
	t.Run("infinite confidence fails with its path", func(t *testing.T) {
		tmpl := demoTemplate()
		tmpl.Confidence = math.Inf(1)

		bundle, err := newTestBuilder(t, "demo").Build(tmpl)
		require.Error(t, err)
		assert.Nil(t, bundle)

		var cerr *CanonicalError
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, "$.confidence", cerr.Path)
		assert.Contains(t, err.Error(), "failed to address capsule")
	})

	t.Run("NaN takes the defaults", func(t *testing.T) {
		tmpl := demoTemplate()
		tmpl.Confidence = math.NaN()
		tmpl.OutcomeScore = math.NaN()

		bundle, err := newTestBuilder(t, "demo").Build(tmpl)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfidence, bundle.Capsule.Confidence)
		assert.Equal(t, DefaultConfidence, bundle.Capsule.Outcome.Score)
	})
}

func TestSeal_RejectsUnsealedReferences(t *testing.T) {
	t.Run("capsule without gene address", func(t *testing.T) {
		_, err := SealCapsule(CapsuleDraft{Type: AssetTypeCapsule, Gene: ""})
		assert.Error(t, err)
	})

	t.Run("event without capsule address", func(t *testing.T) {
		_, err := SealEvolutionEvent(EvolutionEventDraft{Type: AssetTypeEvolutionEvent, CapsuleID: "capsule_1"})
		assert.Error(t, err)
	})

	t.Run("event with malformed gene reference", func(t *testing.T) {
		valid := "sha256:" + strings.Repeat("a", 64)
		_, err := SealEvolutionEvent(EvolutionEventDraft{CapsuleID: valid, GenesUsed: []string{"nope"}})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "genes_used[0]")
	})
}
