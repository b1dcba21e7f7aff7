package fingerprint

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_Deterministic(t *testing.T) {
	data := []byte("the same bytes every time")
	assert.Equal(t, Compute(data), Compute(data))
}

func TestCompute_EmptyDocument(t *testing.T) {
	empty := Compute(nil)
	assert.Len(t, string(empty), 64)
	assert.NotEqual(t, empty, Compute([]byte("x")))
	assert.Equal(t, empty, Compute([]byte{}))
}

func TestCompute_DistinctOverMutations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	seen := make(map[string]struct{})

	base := make([]byte, 256)
	_, err := rng.Read(base)
	require.NoError(t, err)
	seen[string(Compute(base))] = struct{}{}

	// every single-byte flip and every proper prefix is a distinct input and
	// must produce a distinct fingerprint
	for i := range base {
		mutated := append([]byte(nil), base...)
		mutated[i] ^= 0xff
		seen[string(Compute(mutated))] = struct{}{}
		seen[string(Compute(base[:i]))] = struct{}{}
	}
	assert.Len(t, seen, 1+2*len(base))
}

func TestFile_MatchesCompute(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	content := []byte("file content for hashing")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	fromFile, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, Compute(content), fromFile)
}

func TestFile_SurvivesRename(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "before.txt")
	newPath := filepath.Join(dir, "after.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("stable content"), 0o644))

	before, err := File(oldPath)
	require.NoError(t, err)
	require.NoError(t, os.Rename(oldPath, newPath))
	after, err := File(newPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFile_Missing(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
