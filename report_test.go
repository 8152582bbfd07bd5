package srcsep

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportRoundTrip(t *testing.T) {
	rep := &Report{Iterations: []IterationStat{
		{Iteration: 1, LogLikelihood: -12.5},
		{Iteration: 2, LogLikelihood: -10, Improvement: 2.5},
	}}
	var buf bytes.Buffer
	require.NoError(t, rep.Write(&buf))
	assert.Contains(t, buf.String(), `"loglik": -12.5`)
	assert.Equal(t, 1, strings.Count(buf.String(), "improvement"))

	got, err := ReadReport(&buf)
	require.NoError(t, err)
	assert.Equal(t, rep, got)

	final, ok := got.Final()
	assert.True(t, ok)
	assert.Equal(t, -10.0, final)
}

func TestReportEmpty(t *testing.T) {
	_, ok := (&Report{}).Final()
	assert.False(t, ok)

	_, err := ReadReport(strings.NewReader("{"))
	assert.Error(t, err)
}
