package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlexibleDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{name: "compact", in: "20240305", want: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{name: "rfc1123z", in: "Tue, 05 Mar 2024 10:30:00 +0900", want: time.Date(2024, 3, 5, 1, 30, 0, 0, time.UTC)},
		{name: "rfc2822 single digit day", in: "Tue, 5 Mar 2024 10:30:00 +0900", want: time.Date(2024, 3, 5, 1, 30, 0, 0, time.UTC)},
		{name: "rfc2822 gmt", in: "Tue, 5 Mar 2024 10:30:00 GMT", want: time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)},
		{name: "long form", in: "May 8, 2009 5:57:51 PM", want: time.Date(2009, 5, 8, 17, 57, 51, 0, time.UTC)},
		{name: "iso compact offset", in: "2024-03-05T10:30:00+0900", want: time.Date(2024, 3, 5, 1, 30, 0, 0, time.UTC)},
		{name: "iso compact offset fraction", in: "2024-03-05T10:30:00.250-0100", want: time.Date(2024, 3, 5, 11, 30, 0, 250000000, time.UTC)},
		{name: "rfc3339", in: "2024-03-05T10:30:00Z", want: time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)},
		{name: "iso naive", in: "2024-03-05T10:30:00", want: time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)},
		{name: "space separated", in: "2024-03-05 10:30:00", want: time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)},
		{name: "date only", in: " 2024-03-05 ", want: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseFlexibleDate(tt.in)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseFlexibleDateUnknown(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "yesterday", "2024/13/45", "1234567"} {
		got, ok := ParseFlexibleDate(in)
		assert.False(t, ok, in)
		assert.True(t, got.IsZero(), in)
	}
}

func TestParseFlexibleDateInLocation(t *testing.T) {
	t.Parallel()

	kst := time.FixedZone("KST", 9*60*60)
	got, ok := ParseFlexibleDateIn("20240305", kst)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC), got.UTC())
}
