package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInteger(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"5", 5, true},
		{"005", 5, true},
		{"five", 5, true},
		{"Fifteen", 15, true},
		{"twenty", 20, true},
		{"twenty-one", 21, true},
		{"ninety nine", 99, true},
		{"a hundred", 100, true},
		{"one hundred five", 105, true},
		{"one hundred and five", 105, true},
		{"nine hundred ninety-nine", 999, true},
		{"third", 3, true},
		{"twentieth", 20, true},
		{"1000", 0, false},
		{"one thousand", 0, false},
		{"twenty twenty", 0, false},
		{"one two", 0, false},
		{"ten five", 0, false},
		{"and", 0, false},
		{"a", 0, false},
		{"", 0, false},
		{"-3", 0, false},
		{"banana", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseInteger(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"2", 2, true},
		{"1.5", 1.5, true},
		{"1,5", 1.5, true},
		{"a", 1, true},
		{"an", 1, true},
		{"half", 0.5, true},
		{"half an", 0.5, true},
		{"a quarter of an", 0.25, true},
		{"two and a half", 2.5, true},
		{"2 and a half", 2.5, true},
		{"thirty", 30, true},
		{"a couple of", 2, true},
		{"inf", 0, false},
		{"nan", 0, false},
		{"lots", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseQuantity(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}
