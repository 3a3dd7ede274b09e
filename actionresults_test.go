package gowfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_ActionResults_Add(t *testing.T) {
	results := NewActionResults()
	results.Add("f1", "a")
	results.Add("f2", "")
	results.Add("f3", "b")
	results.Add("f4", "a")

	assert.Equal(t, 4, results.Total())
	assert.Equal(t, []string{"a", "b"}, results.Handles())
	assert.Equal(t, []string{"f1", "f4"}, results.Fids("a"))
	assert.Equal(t, []string{"f3"}, results.Fids("b"))
	assert.Equal(t, []string{"f2"}, results.FidsWithoutHandle())
	assert.Equal(t, 0, len(results.Fids("")))
}

func Test_ActionResults_empty(t *testing.T) {
	results := NewActionResults()
	assert.Equal(t, 0, results.Total())
	assert.Equal(t, 0, len(results.Handles()))
	assert.Equal(t, 0, len(results.FidsWithoutHandle()))
}
