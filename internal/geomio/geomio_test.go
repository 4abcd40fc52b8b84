package geomio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadValidMesh(t *testing.T) {
	r := strings.NewReader(`{"verts":[0,0,0, 1,0,0, 1,0,1],"tris":[0,1,2]}`)
	m, err := Load(r)
	require.NoError(t, err)
	assert.Equal(t, int32(1), m.NumTriangles())
}

func TestLoadRejectsUnalignedVerts(t *testing.T) {
	r := strings.NewReader(`{"verts":[0,0],"tris":[]}`)
	_, err := Load(r)
	assert.Error(t, err)
}

func TestLoadRejectsOutOfRangeIndex(t *testing.T) {
	r := strings.NewReader(`{"verts":[0,0,0, 1,0,0, 1,0,1],"tris":[0,1,5]}`)
	_, err := Load(r)
	assert.Error(t, err)
}

func TestLoadRejectsMismatchedAreas(t *testing.T) {
	r := strings.NewReader(`{"verts":[0,0,0, 1,0,0, 1,0,1],"tris":[0,1,2],"areas":[1,2]}`)
	_, err := Load(r)
	assert.Error(t, err)
}

func TestBounds(t *testing.T) {
	r := strings.NewReader(`{"verts":[-1,0,-2, 3,5,0, 0,-1,4],"tris":[0,1,2]}`)
	m, err := Load(r)
	require.NoError(t, err)
	bmin, bmax := m.Bounds()
	assert.Equal(t, [3]float32{-1, -1, -2}, bmin)
	assert.Equal(t, [3]float32{3, 5, 4}, bmax)
}
