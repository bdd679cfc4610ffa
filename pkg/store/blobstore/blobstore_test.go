package blobstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/htrc/data-api/pkg/store"
	"github.com/htrc/data-api/pkg/volume"
)

func newSeededStore(t *testing.T) *Store {
	t.Helper()
	s := New(memblob.OpenBucket(nil), "htrc")
	t.Cleanup(func() { s.Close() })

	err := s.PutVolume(context.Background(),
		volume.Info{VolumeID: "test.vol1", PageCount: 3, Copyright: volume.InCopyright},
		map[string][]byte{"00000001": []byte("p1"), "00000003": []byte("p3")},
		map[string][]byte{"mets.xml": []byte("<mets/>")})
	require.NoError(t, err)
	return s
}

func TestStore_VolumeInfo(t *testing.T) {
	s := newSeededStore(t)

	info, err := s.VolumeInfo(context.Background(), "test.vol1")
	require.NoError(t, err)
	assert.Equal(t, volume.Info{VolumeID: "test.vol1", PageCount: 3, Copyright: volume.InCopyright}, info)

	_, err = s.VolumeInfo(context.Background(), "test.none")
	assert.True(t, errors.Is(err, store.ErrNoData))
}

func TestStore_Columns(t *testing.T) {
	s := newSeededStore(t)

	cols, err := s.Columns(context.Background(), "test.vol1", store.FamilyPages, []string{"00000001", "00000002", "00000003"})
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, "p1", string(cols[0].Value))
	assert.Nil(t, cols[1].Value)
	assert.Equal(t, "p3", string(cols[2].Value))

	_, err = s.Columns(context.Background(), "test.vol1", store.FamilyMetadata, []string{"dc.xml"})
	assert.True(t, errors.Is(err, store.ErrNoData))
}

func TestStore_ColumnsStayInsideVolume(t *testing.T) {
	s := New(memblob.OpenBucket(nil), "")
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	require.NoError(t, s.PutVolume(ctx,
		volume.Info{VolumeID: "mdp.ic", PageCount: 1, Copyright: volume.InCopyright},
		map[string][]byte{"00000001": []byte("in-copyright page")}, nil))
	require.NoError(t, s.PutVolume(ctx,
		volume.Info{VolumeID: "mdp.pd", PageCount: 1, Copyright: volume.PublicDomain},
		map[string][]byte{"00000001": []byte("public page")}, nil))

	_, err := s.Columns(ctx, "mdp.pd", store.FamilyMetadata, []string{"../../mdp.ic/pages/00000001"})
	assert.True(t, errors.Is(err, store.ErrNoData), "got %v", err)

	cols, err := s.Columns(ctx, "mdp.pd", store.FamilyPages, []string{"00000001", "../../mdp.ic/pages/00000001"})
	require.NoError(t, err)
	assert.Equal(t, "public page", string(cols[0].Value))
	assert.Nil(t, cols[1].Value)
}

func TestStore_PutVolumeRejectsEscapingNames(t *testing.T) {
	s := New(memblob.OpenBucket(nil), "")
	t.Cleanup(func() { s.Close() })

	err := s.PutVolume(context.Background(),
		volume.Info{VolumeID: "mdp.pd", PageCount: 1, Copyright: volume.PublicDomain},
		nil, map[string][]byte{"../info.json": []byte("{}")})
	assert.True(t, errors.Is(err, store.ErrInvalidColumnName), "got %v", err)
}

func TestOpen_MemURL(t *testing.T) {
	s, err := Open(context.Background(), "mem://", "")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.VolumeInfo(context.Background(), "test.vol1")
	assert.True(t, errors.Is(err, store.ErrNoData))
}
