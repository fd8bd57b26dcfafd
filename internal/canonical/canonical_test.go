package canonical

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeysRecursively(t *testing.T) {
	doc := map[string]any{
		"zeta": 1,
		"alpha": map[string]any{
			"b": 2,
			"a": 1,
		},
	}

	out, err := Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":1,"b":2},"zeta":1}`, string(out))
}

func TestMarshalDeterministic(t *testing.T) {
	doc := map[string]any{
		"totals": map[string]any{"gross_total": 1000.0, "net_payable": 800.0},
		"lines":  []any{map[string]any{"line_type": "wage", "amount": 1000.0}},
	}

	out1, err := Marshal(doc)
	require.NoError(t, err)
	out2, err := Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, out1, out2, "canonical form must be byte-identical across calls")
}

func TestMarshalNumbersShortestForm(t *testing.T) {
	out, err := Marshal(map[string]any{"a": 141.0, "b": 0.141, "c": 70.5})
	require.NoError(t, err)
	assert.Equal(t, `{"a":141,"b":0.141,"c":70.5}`, string(out))
}

func TestMarshalNoHTMLEscaping(t *testing.T) {
	out, err := Marshal(map[string]any{"note": "a<b & c>d"})
	require.NoError(t, err)
	assert.Equal(t, `{"note":"a<b & c>d"}`, string(out))
}

func TestMarshalNullAndNested(t *testing.T) {
	out, err := Marshal(map[string]any{
		"employee": nil,
		"meta":     map[string]any{"rule": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"employee":null,"meta":{"rule":null}}`, string(out))
}

func TestMarshalRejectsNonFinite(t *testing.T) {
	_, err := Marshal(map[string]any{"amount": math.Inf(1)})
	assert.Error(t, err)

	_, err = Marshal(map[string]any{"amount": math.NaN()})
	assert.Error(t, err)
}

func TestMarshalRejectsUnknownType(t *testing.T) {
	type opaque struct{ X int }
	_, err := Marshal(map[string]any{"v": opaque{1}})
	assert.Error(t, err)
}

func TestSortedKeysUTF16Order(t *testing.T) {
	// U+FF21 (FULLWIDTH A) sorts after "z" in UTF-16 code units.
	keys := SortedKeys(map[string]any{"Ａ": 1, "z": 2, "a": 3})
	assert.Equal(t, []string{"a", "z", "Ａ"}, keys)
}
