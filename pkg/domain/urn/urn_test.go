package urn

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMiriam(t *testing.T) {
	u, err := Parse("urn:miriam:kegg.compound:C00001")
	require.NoError(t, err)
	assert.Equal(t, "kegg.compound", u.Namespace)
	assert.Equal(t, "C00001", u.Suffix())
	assert.Equal(t, "urn:miriam:kegg.compound:C00001", u.String())
}

func TestParseUnescapesLocalID(t *testing.T) {
	u, err := Parse("urn:miriam:chebi:CHEBI%3A15377")
	require.NoError(t, err)
	assert.Equal(t, "chebi", u.Namespace)
	assert.Equal(t, "CHEBI:15377", u.Suffix())
}

func TestParseShortForm(t *testing.T) {
	u, err := Parse("K:C1")
	require.NoError(t, err)
	assert.Equal(t, "k", u.Namespace)
	assert.Equal(t, "C1", u.Suffix())
}

func TestParseRejectsMissingParts(t *testing.T) {
	for _, in := range []string{"", "C00001", ":C1", "urn:miriam:chebi:", "kegg:"} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestParseWrapsBadEscape(t *testing.T) {
	_, err := Parse("chebi:%zz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid urn "chebi:%zz"`)
	var escape url.EscapeError
	assert.True(t, errors.As(err, &escape), err.Error())
}

func TestLocations(t *testing.T) {
	u, err := Parse("urn:miriam:kegg.compound:C00001")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"http://www.genome.jp/dbget-bin/www_bget?cpd:C00001",
		"http://rest.kegg.jp/get/C00001",
	}, u.Locations())

	unknown, err := Parse("foo:bar")
	require.NoError(t, err)
	assert.Empty(t, unknown.Locations())
}
