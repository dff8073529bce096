package models

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{"0.5", 0.5, false},
		{" 1.25 ", 1.25, false},
		{"-3", -3, false},
		{"", 0, true},
		{"12abc", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseNumber(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotANumber)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValue_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Value `json:"a"`
		B Value `json:"b"`
	}{A: Some(1.5), B: Missing})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1.5,"b":null}`, string(b))

	var v Value
	require.NoError(t, json.Unmarshal([]byte("null"), &v))
	assert.False(t, v.Valid)
	require.NoError(t, json.Unmarshal([]byte("2"), &v))
	assert.True(t, v.Equal(Some(2)))
}

func TestNodeFromAny(t *testing.T) {
	var raw any
	require.NoError(t, json.Unmarshal([]byte(`{
		"units": "mg/dl",
		"dia": 3,
		"basal": [{"time": "00:00", "value": "0.5"}, {"timeAsSeconds": 21600, "value": 0.8}],
		"nested": [[{"time": "01:00", "value": 1}]],
		"flag": true,
		"nothing": null
	}`), &raw))

	n := NodeFromAny(raw)
	require.Equal(t, NodeMap, n.Kind)

	assert.Equal(t, NodeScalar, n.Map["units"].Kind)
	assert.Equal(t, "mg/dl", n.Map["units"].Text)
	assert.True(t, n.Map["dia"].Literal)
	assert.Equal(t, "3", n.Map["dia"].Text)
	assert.Equal(t, NodeNull, n.Map["nothing"].Kind)

	basal := n.Map["basal"]
	require.True(t, basal.IsSchedule())
	require.Len(t, basal.List, 2)
	assert.Equal(t, "00:00", basal.List[0].Entry.Time)
	assert.Equal(t, "0.5", basal.List[0].Entry.Raw.Text)
	assert.True(t, basal.List[1].Entry.SecondsValid)
	assert.Equal(t, 21600, basal.List[1].Entry.Seconds)

	nested := n.Map["nested"]
	require.Equal(t, NodeList, nested.Kind)
	assert.True(t, nested.List[0].IsSchedule())
	assert.False(t, nested.IsSchedule())
}

func TestNode_MarshalCanonical(t *testing.T) {
	def := ProfileDefinition{Fields: map[string]Node{
		"units": Scalar("mmol"),
		"dia":   Number(4),
		"basal": List(Entry("00:00", Number(0.5))),
	}}

	b, err := json.Marshal(def)
	require.NoError(t, err)
	assert.Equal(t, `{"basal":[{"time":"00:00","value":0.5}],"dia":4,"units":"mmol"}`, string(b))
}

func TestProfileDefinition_Text(t *testing.T) {
	def := ProfileDefinition{Fields: map[string]Node{
		"units":    Scalar("mg/dl"),
		"timezone": Scalar("Europe/Vienna"),
		"basal":    List(Entry("00:00", Number(1))),
	}}

	assert.Equal(t, "mg/dl", def.Units())
	assert.Equal(t, "Europe/Vienna", def.Timezone())
	assert.Equal(t, "", def.Text("basal"))
	assert.True(t, ProfileDefinition{}.IsEmpty())
}
