package patch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestDiffReportsOnlyChangedTopLevelKeys(t *testing.T) {
	before := decode(t, `{"title":"Old","owner":"Ann","meta":{"a":1,"b":2},"rows":[1,2]}`)
	after := decode(t, `{"title":"New","owner":"Ann","meta":{"b":2,"a":1},"rows":[2,1]}`)

	d, err := Diff(before, after)
	require.NoError(t, err)
	require.Equal(t, []string{"rows", "title"}, ChangedKeys(d))
	require.Equal(t, "New", d["title"])
}

func TestDiffEncodesRemovedKeysAsNull(t *testing.T) {
	before := decode(t, `{"title":"T","notes":"x"}`)
	after := decode(t, `{"title":"T","notes":null}`)

	d, err := Diff(before, after)
	require.NoError(t, err)
	value, ok := d["notes"]
	require.True(t, ok)
	require.Nil(t, value)

	d, err = Diff(before, decode(t, `{"title":"T"}`))
	require.NoError(t, err)
	require.Contains(t, d, "notes")
}

func TestDiffOfIdenticalContentIsEmpty(t *testing.T) {
	a := decode(t, `{"x":{"y":[1,{"z":true}]}}`)
	d, err := Diff(a, decode(t, `{"x":{"y":[1,{"z":true}]}}`))
	require.NoError(t, err)
	require.Empty(t, d)
}

func TestApplyDoesNotMutateInputs(t *testing.T) {
	base := decode(t, `{"title":"Old","rows":[{"notes":"a"}],"gone":1}`)
	p := decode(t, `{"title":"New","gone":null}`)

	merged, err := Apply(base, p)
	require.NoError(t, err)
	require.Equal(t, "New", merged["title"])
	require.NotContains(t, merged, "gone")

	rows := merged["rows"].([]interface{})
	rows[0].(map[string]interface{})["notes"] = "changed"

	require.Equal(t, "Old", base["title"])
	require.Equal(t, float64(1), base["gone"])
	require.Equal(t, "a", base["rows"].([]interface{})[0].(map[string]interface{})["notes"])
	require.Len(t, p, 2)
}

func TestApplyReplacesNestedValuesWholesale(t *testing.T) {
	base := decode(t, `{"meta":{"a":1,"b":2}}`)
	merged, err := Apply(base, decode(t, `{"meta":{"a":5}}`))
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"a": float64(5)}, merged["meta"])
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		before string
		after  string
	}{
		{"change", `{"title":"A","owner":"x"}`, `{"title":"B","owner":"x"}`},
		{"add", `{"title":"A"}`, `{"title":"A","owner":"Jane"}`},
		{"remove", `{"title":"A","owner":"x"}`, `{"title":"A"}`},
		{"nested", `{"rows":[{"n":1}],"m":{"k":"v"}}`, `{"rows":[{"n":1},{"n":2}],"m":{"k":"w"}}`},
		{"empty before", `{}`, `{"a":[1,2,3]}`},
		{"empty after", `{"a":1,"b":"2"}`, `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := decode(t, tc.before)
			b := decode(t, tc.after)

			d, err := Diff(a, b)
			require.NoError(t, err)
			merged, err := Apply(a, d)
			require.NoError(t, err)

			same, err := Equal(merged, b)
			require.NoError(t, err)
			require.True(t, same, "apply(A, diff(A, B)) must equal B")

			again, err := Diff(a, merged)
			require.NoError(t, err)
			same, err = Equal(again, d)
			require.NoError(t, err)
			require.True(t, same, "patch must be idempotent")
		})
	}
}

func TestNormalizeDropsNulls(t *testing.T) {
	out := Normalize(decode(t, `{"a":null,"b":0,"c":""}`))
	require.Equal(t, []string{"b", "c"}, ChangedKeys(out))
}

func TestEqualTreatsNumericShapesAlike(t *testing.T) {
	same, err := Equal(map[string]interface{}{"n": 1}, map[string]interface{}{"n": float64(1)})
	require.NoError(t, err)
	require.True(t, same)
}
