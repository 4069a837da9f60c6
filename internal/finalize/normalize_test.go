package finalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"https://Example.com/a/":                      "https://example.com/a",
		"https://www.example.com/a?utm_source=x&id=2": "https://example.com/a?id=2",
		"https://example.com/a#comments":              "https://example.com/a",
		"not a url/":                                  "not a url",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeURL(in), in)
	}
}

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "카드 결제 오류 2024", NormalizeTitle("  [카드]  결제-오류!! 2024 "))
	assert.Equal(t, "", NormalizeTitle("!!!"))
}

func TestJaccard(t *testing.T) {
	t.Parallel()

	a := Shingles("one two three four five")
	b := Shingles("one two three four six")
	assert.Equal(t, 1.0, Jaccard(a, a))
	assert.InDelta(t, 0.5, Jaccard(a, b), 1e-9)
	assert.Equal(t, 0.0, Jaccard(nil, nil))
	assert.Nil(t, Shingles("too short"))
}
