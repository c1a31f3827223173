package format_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/workspace-agent/internal/format"
)

func TestHTML2Text(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "paragraphs_and_inline",
			input:    `<html><head><title>t</title><style>p{color:red}</style></head><body><p>Hello <b>World</b></p><p>Second   line</p></body></html>`,
			expected: "Hello World\nSecond line",
		},
		{
			name:     "list_items",
			input:    `<ul><li>one</li><li>two</li></ul>`,
			expected: "- one\n- two",
		},
		{
			name:     "links",
			input:    `<p>See <a href="https://example.com/x">the report</a> or <a href="https://example.com">https://example.com</a></p>`,
			expected: "See the report (https://example.com/x) or https://example.com",
		},
		{
			name: "layout_table",
			input: `<table id="main"><tbody>
				<tr><td>Name</td><td>Alice</td></tr>
				<tr><td>Age</td><td>30</td></tr>
			</tbody></table>`,
			expected: "Name Alice\nAge 30",
		},
		{
			name:     "line_breaks_and_entities",
			input:    `<div>Tom &amp; Jerry<br>next<br/>last</div><script>alert(1)</script>`,
			expected: "Tom & Jerry\nnext\nlast",
		},
		{
			name:     "plain_text",
			input:    "just text",
			expected: "just text",
		},
	}

	cnv := format.Converter{}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := cnv.HTML2Text([]byte(tc.input))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}
