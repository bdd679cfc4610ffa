package volume

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifier_PageSequencesSortedAndDeduplicated(t *testing.T) {
	id := NewIdentifier("test.vol1")
	err := id.AddPages("99999999", "00029340", "00021022", "00029340", "99999999", "00000099", "34521334")
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"00000099", "00021022", "00029340", "34521334", "99999999"},
		id.PageSequences())
	assert.False(t, id.AllPages())
}

func TestIdentifier_PureVolumeHasNilPages(t *testing.T) {
	id := NewIdentifier("test.vol1")

	assert.True(t, id.AllPages())
	assert.Nil(t, id.PageSequences())
	assert.Empty(t, id.MetadataNames())
}

func TestIdentifier_UnpaddedSequencesAreCanonicalised(t *testing.T) {
	id := NewIdentifier("test.vol1")
	require.NoError(t, id.AddPages("1", "3", "2", "0003"))

	assert.Equal(t, []string{"00000001", "00000002", "00000003"}, id.PageSequences())
}

func TestIdentifier_MetadataSortedAndDeduplicated(t *testing.T) {
	id := NewIdentifier("test.vol1")
	require.NoError(t, id.AddMetadata("mets.xml", "dc.xml", "mets.xml", " "))

	assert.Equal(t, []string{"dc.xml", "mets.xml"}, id.MetadataNames())
}

func TestCanonicalSequence(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "padded", input: "00000042", want: "00000042"},
		{name: "unpadded", input: "42", want: "00000042"},
		{name: "whitespace", input: " 7 ", want: "00000007"},
		{name: "too long", input: "123456789", wantErr: true},
		{name: "letters", input: "12a", wantErr: true},
		{name: "negative", input: "-1", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalSequence(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidSequence))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"mdp.39015012345678", "mdp.39015012345678"},
		{"uc2.ark:/13960/t0000", "uc2.ark+=13960=t0000"},
		{"loc.ark:/13960/t9.x", "loc.ark+=13960=t9,x"},
		{"noprefix", "noprefix"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeID(tt.input))
		})
	}
}

func TestParseIdentifiers(t *testing.T) {
	ids, err := ParseIdentifiers("test.vol1<1,3,2>|test.vol2| test.vol3<>[mets.xml,dc.xml] |test.vol1")
	require.NoError(t, err)
	require.Len(t, ids, 4)

	assert.Equal(t, "test.vol1", ids[0].VolumeID())
	assert.Equal(t, []string{"00000001", "00000002", "00000003"}, ids[0].PageSequences())

	assert.True(t, ids[1].AllPages())

	assert.False(t, ids[2].AllPages())
	assert.Empty(t, ids[2].PageSequences())
	assert.Equal(t, []string{"dc.xml", "mets.xml"}, ids[2].MetadataNames())

	assert.Equal(t, "test.vol1", ids[3].VolumeID())
	assert.Equal(t, "test.vol3<>[dc.xml,mets.xml]", ids[2].String())
}

func TestIdentifier_MetadataNameMustBePlain(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"mets.xml", true},
		{"dc.v2.xml", true},
		{"../../mdp.ic/pages/00000001", false},
		{"..", false},
		{"a..b", false},
		{".hidden", false},
		{"sub/mets.xml", false},
		{`sub\mets.xml`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := NewIdentifier("mdp.pd")
			err := id.AddMetadata(tt.name)
			if tt.valid {
				require.NoError(t, err)
				assert.Equal(t, []string{tt.name}, id.MetadataNames())
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidMetadataName), "got %v", err)
			assert.Empty(t, id.MetadataNames())
		})
	}
}

func TestParseIdentifiers_Malformed(t *testing.T) {
	for _, input := range []string{
		"novolumeprefix",
		"test.vol1<1,2",
		"test.vol1<x>",
		"test.vol1<1>x",
		"mdp.pd<1>[../../mdp.ic/pages/00000001]",
		"mdp.pd[.info.json]",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseIdentifiers(input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedIdentifier))
		})
	}
}

func TestReader_DrainsOnce(t *testing.T) {
	r := NewReader("uc2.ark:/13960/t1",
		[]ContentUnit{{Name: "00000001", Data: []byte("a")}, {Name: "00000002", Data: []byte("b")}},
		[]ContentUnit{{Name: "mets.xml", Data: []byte("<mets/>")}})

	assert.Equal(t, "uc2.ark+=13960=t1", r.SanitizedID())

	var names []string
	for r.HasMorePages() {
		p, ok := r.NextPage()
		require.True(t, ok)
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"00000001", "00000002"}, names)

	_, ok := r.NextPage()
	assert.False(t, ok)

	m, ok := r.NextMetadata()
	require.True(t, ok)
	assert.Equal(t, "mets.xml", m.Name)
	assert.False(t, r.HasMoreMetadata())
}

func TestParseCopyright(t *testing.T) {
	c, err := ParseCopyright("pd")
	require.NoError(t, err)
	assert.Equal(t, PublicDomain, c)

	c, err = ParseCopyright("in-copyright")
	require.NoError(t, err)
	assert.Equal(t, InCopyright, c)

	_, err = ParseCopyright("maybe")
	assert.Error(t, err)
}
