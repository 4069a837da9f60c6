package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "sentinel", err: fmt.Errorf("call: %w", ErrTransient), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, want: true},
		{name: "conn refused", err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED), want: true},
		{name: "rate limited", err: &StatusError{Code: 429}, want: true},
		{name: "server error", err: &StatusError{Code: 503}, want: true},
		{name: "bad request", err: &StatusError{Code: 400}, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestRunTrackerOrder(t *testing.T) {
	t.Parallel()

	var tr RunTracker
	assert.NoError(t, tr.Advance(StageFetched))
	assert.NoError(t, tr.Advance(StageRuleScored))
	assert.ErrorIs(t, tr.Advance(StageLLMScored), ErrStageOrder)
	assert.Equal(t, StageRuleScored, tr.Stage())
	assert.NoError(t, tr.Advance(StageSelected))
	assert.Equal(t, "selected", tr.Stage().String())
}

func TestDigestItemsFallback(t *testing.T) {
	t.Parallel()

	d := Digest{Entries: []ScoredCandidate{
		{Candidate: Candidate{Title: "a", Body: "body a", URL: "u1"}, Summary: "sum a"},
		{Candidate: Candidate{Title: "b", Body: "body b", URL: "u2"}},
	}}
	items := d.Items()
	assert.Equal(t, "sum a", items[0].Description)
	assert.Equal(t, "body b", items[1].Description)
	assert.Equal(t, []string{"u1", "u2"}, d.URLs())
	assert.False(t, d.Empty())
}

func TestCandidateValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Candidate{URL: "https://a"}.Validate())

	err := Candidate{Title: "no link"}.Validate()
	assert.ErrorIs(t, err, ErrInvalidCandidate)
	assert.False(t, IsTransient(err))
}
