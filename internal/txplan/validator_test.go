package txplan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsWellFormedBatch(t *testing.T) {
	raw := json.RawMessage(`[
		{"to":"0x48b62137edfa95a428d35c09e44256a739f6b557","data":"0xdeadbeef","value":"1000000000000000000"},
		{"to":"0x48b62137edfa95a428d35c09e44256a739f6b557","data":"0x"}
	]`)

	plans, err := Validate(raw)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "0xdeadbeef", plans[0].Data)
	assert.Equal(t, "1000000000000000000", plans[0].Value)
	assert.Empty(t, plans[1].Value)
}

func TestValidatePreservesUnknownFields(t *testing.T) {
	raw := json.RawMessage(`[
		{"to":"0x48b62137edfa95a428d35c09e44256a739f6b557","data":"0x01","gasLimit":"21000","from":"0xabc"}
	]`)

	plans, err := Validate(raw)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	require.Contains(t, plans[0].Extra, "gasLimit")
	require.Contains(t, plans[0].Extra, "from")

	// Round-trip keeps the passthrough fields.
	out, err := json.Marshal(plans[0])
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "21000", decoded["gasLimit"])
}

func TestValidateRejectsBatchAtomically(t *testing.T) {
	raw := json.RawMessage(`[
		{"to":"0x48b62137edfa95a428d35c09e44256a739f6b557","data":"0x01"},
		{"data":"0x02"}
	]`)

	plans, err := Validate(raw)
	assert.Nil(t, plans, "no partial batch on rejection")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, verr.Index)
	assert.Equal(t, "to", verr.Field)
}

func TestValidateRejectsMalformedHex(t *testing.T) {
	cases := map[string]string{
		"short address":      `[{"to":"0x1234","data":"0x01"}]`,
		"unprefixed address": `[{"to":"48b62137edfa95a428d35c09e44256a739f6b557","data":"0x01"}]`,
		"non-hex data":       `[{"to":"0x48b62137edfa95a428d35c09e44256a739f6b557","data":"0xzz"}]`,
		"odd-length data":    `[{"to":"0x48b62137edfa95a428d35c09e44256a739f6b557","data":"0x012"}]`,
		"missing data":       `[{"to":"0x48b62137edfa95a428d35c09e44256a739f6b557"}]`,
		"bad value":          `[{"to":"0x48b62137edfa95a428d35c09e44256a739f6b557","data":"0x01","value":"1.5e18"}]`,
	}
	for name, raw := range cases {
		_, err := Validate(json.RawMessage(raw))
		assert.Error(t, err, name)
	}
}

func TestValidateRejectsNonArrayEnvelope(t *testing.T) {
	_, err := Validate(json.RawMessage(`{"to":"0x00"}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, -1, verr.Index)

	_, err = Validate(nil)
	assert.Error(t, err)
}
