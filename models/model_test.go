package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	a, err := ParseAction("list")
	require.NoError(t, err)
	assert.Equal(t, "LIST", a.Verb())

	a, err = ParseAction("download")
	require.NoError(t, err)
	assert.Equal(t, "RETR", a.Verb())

	_, err = ParseAction("delete")
	assert.ErrorIs(t, err, ErrUnknownAction)
}
