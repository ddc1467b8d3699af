package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatAlignsColumns(t *testing.T) {
	got := Format([][]string{
		{"dev", "12 windows", "attached"},
		{"scratch", "1 window", ""},
		{"日本", "3 windows"},
	}, []Alignment{AlignLeft, AlignRight})
	assert.Equal(t, []string{
		"dev      12 windows  attached",
		"scratch    1 window",
		"日本      3 windows",
	}, got)
	assert.Nil(t, Format(nil, nil))
}
