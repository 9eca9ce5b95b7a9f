package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding prose", "Sure! {\"a\":1} Hope that helps.", `{"a":1}`},
		{"trailing comma", `{"a":[1,2,],}`, `{"a":[1,2]}`},
		{"comment outside string", "{\n\"a\": 1, // one\n\"b\": 2\n}", "{\n\"a\": 1,\n\"b\": 2\n}"},
		{"slashes inside string kept", `{"url":"http://x.io"}`, `{"url":"http://x.io"}`},
		{"no object", "nothing here", ""},
		{"valid json untouched", `{"sentences": ["Breathe in, ]", "Count to three, }"]}`, `{"sentences": ["Breathe in, ]", "Count to three, }"]}`},
		{"repair skips strings", `{"sentences": ["Breathe in, ]", "Count to three, }",],}`, `{"sentences": ["Breathe in, ]", "Count to three, }"]}`},
		{"escaped quote in string", `{"a": "say \"hi, ]\"", "b": [1,],}`, `{"a": "say \"hi, ]\"", "b": [1]}`},
		{"comma before newline and brace", "{\"a\": 1,\n}", "{\"a\": 1\n}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.input))
		})
	}
}
