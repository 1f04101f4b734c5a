package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileManifest(t *testing.T) {
	def, err := LoadFile("testdata/booking.yaml")
	require.NoError(t, err)

	assert.Equal(t, "movie-booking", def.Name)
	assert.Equal(t, "1.2.0", def.Version)
	assert.Equal(t, "collect", def.InitialStep)
	assert.Len(t, def.Steps, 8)

	charge, ok := def.Step("root_ca_charge")
	require.True(t, ok)
	assert.True(t, charge.IsAuthority())
	assert.Len(t, charge.Actions, 2)
	require.Len(t, charge.Events, 1)
	assert.Equal(t, "payment_attempted", charge.Events[0].Name)

	choose, ok := def.Step("choose_listing")
	require.True(t, ok)
	require.True(t, choose.IsDecision())
	assert.Equal(t, int64(60000), choose.Decision.TimeoutMs)
	assert.Equal(t, "expired", choose.Decision.TimeoutStep)
	require.NotNil(t, choose.Decision.OptionsFrom)
	assert.Equal(t, "{{item.id}}", choose.Decision.OptionsFrom.Value)

	assert.Equal(t, []string{
		"add_ledger_entry", "log", "process_payment", "root_ca_settle_entry", "root_ca_update_balances", "set",
	}, def.ActionTypes())
}

func TestLoadBytesPlainJSON(t *testing.T) {
	data := []byte(`{
		"name": "ping",
		"version": "0.1.0",
		"initialStep": "a",
		"finalSteps": ["b"],
		"steps": [{"id": "a", "kind": "process"}, {"id": "b", "kind": "output"}],
		"transitions": [{"from": "a", "to": "b"}]
	}`)
	def, err := LoadBytes("ping.json", data)
	require.NoError(t, err)
	assert.Equal(t, "ping", def.Name)
	assert.Equal(t, []Transition{{From: "a", To: "b"}}, def.Transitions)
}

func TestLoadBytesSchemaErrors(t *testing.T) {
	_, err := LoadBytes("bad.yaml", []byte("name: bad\nsteps: []\n"))
	verr, ok := AsValidationError(err)
	require.True(t, ok, "expected *ValidationError, got %T", err)
	assert.Equal(t, "bad.yaml", verr.Workflow)
	assert.NotEmpty(t, verr.Problems)
}

func TestLoadBytesSemanticErrors(t *testing.T) {
	_, err := LoadFile("testdata/invalid.yaml")
	verr, ok := AsValidationError(err)
	require.True(t, ok, "expected *ValidationError, got %T", err)
	assert.Equal(t, "broken", verr.Workflow)
	assertContains(t, verr.Problems, "not a semantic version")
	assertContains(t, verr.Problems, `"start" is a duplicate`)
	assertContains(t, verr.Problems, `kind "wander" is not valid`)
	assertContains(t, verr.Problems, "requires decision.prompt")
	assertContains(t, verr.Problems, `to "nowhere" does not exist`)
	assertContains(t, verr.Problems, `finalSteps "finish" does not exist`)
}

func TestLoadBytesUnknownActionTag(t *testing.T) {
	_, err := LoadFile("testdata/booking.yaml", WithActionCatalog(catalog{"set": true, "log": true}))
	verr, ok := AsValidationError(err)
	require.True(t, ok)
	assertContains(t, verr.Problems, `"process_payment" has no handler`)
}

func TestLoadBytesManifestChecks(t *testing.T) {
	data := []byte(`
apiVersion: edenkit.io/v2
kind: Pipeline
metadata: {}
`)
	_, err := LoadBytes("m.yaml", data)
	verr, ok := AsValidationError(err)
	require.True(t, ok)
	assertContains(t, verr.Problems, "apiVersion must be")
	assertContains(t, verr.Problems, "kind must be")
	assertContains(t, verr.Problems, "metadata.name is required")
	assertContains(t, verr.Problems, "spec is required")
}

func TestLoadBytesRejectsNonMapping(t *testing.T) {
	_, err := LoadBytes("list.yaml", []byte("- a\n- b\n"))
	verr, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, []string{"document must be a mapping"}, verr.Problems)

	_, err = LoadBytes("junk.yaml", []byte("a: [b"))
	_, ok = AsValidationError(err)
	assert.True(t, ok)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("testdata/does-not-exist.yaml")
	require.Error(t, err)
	_, ok := AsValidationError(err)
	assert.False(t, ok)
}
