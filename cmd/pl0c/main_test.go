package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInput(t *testing.T) {
	r, err := parseInput("")
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = parseInput("3, -1,0x10")
	require.NoError(t, err)
	assert.Equal(t, []int32{3, -1, 16}, r)

	_, err = parseInput("1,x")
	assert.Error(t, err)
}
