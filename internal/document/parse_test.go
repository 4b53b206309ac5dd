package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValid(t *testing.T) {
	doc, perr := Parse([]byte(`{
		"name": "daily",
		"sources": [{"name": "rss", "params": {"provider": "gpt"}}],
		"ai": [{"name": "gpt", "params": {}}]
	}`))
	require.Nil(t, perr)
	require.NotNil(t, doc)
	assert.Equal(t, "daily", doc.Name)
	require.Len(t, doc.Sources, 1)
	assert.Equal(t, "gpt", doc.Sources[0].Params["provider"])
}

func TestParseSyntaxErrorPosition(t *testing.T) {
	raw := []byte("{\n  \"name\": \"daily\",\n  \"sources\": [,]\n}")
	doc, perr := Parse(raw)
	assert.Nil(t, doc)
	require.NotNil(t, perr)
	assert.Equal(t, 3, perr.Line, "error is on the third line")
	assert.Greater(t, perr.Column, 1)
	assert.Contains(t, perr.Error(), "line 3")
}

func TestParseTypeErrorPosition(t *testing.T) {
	raw := []byte("{\n  \"name\": 42\n}")
	doc, perr := Parse(raw)
	assert.Nil(t, doc)
	require.NotNil(t, perr)
	assert.Equal(t, 2, perr.Line)
	assert.Contains(t, perr.Msg, "name")
}

func TestParseTrailingGarbage(t *testing.T) {
	doc, perr := Parse([]byte(`{"name": "d"} trailing`))
	assert.Nil(t, doc)
	require.NotNil(t, perr)
	assert.Contains(t, perr.Msg, "unexpected data")
}

func FuzzParse(f *testing.F) {
	f.Add([]byte(`{"name": "d", "sources": []}`))
	f.Add([]byte(`{`))
	f.Add([]byte(`not json`))
	f.Add([]byte(`{"name": "d"} {}`))

	f.Fuzz(func(t *testing.T, raw []byte) {
		// Must never panic; a failed parse must return a positioned error.
		doc, perr := Parse(raw)
		if doc == nil && perr == nil {
			t.Fatal("Parse returned neither a document nor an error")
		}
		if perr != nil {
			if perr.Line < 1 || perr.Column < 1 {
				t.Fatalf("parse error position must be 1-based, got %d:%d", perr.Line, perr.Column)
			}
		}
	})
}
