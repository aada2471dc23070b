package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetShortTextUnchanged(t *testing.T) {
	ts := NewRecursiveCharacterTextSplitter(100, 0)

	out, err := ts.Budget("short text", 50)
	require.NoError(t, err)
	assert.Equal(t, "short text", out)
}

func TestBudgetKeepsLeadingChunks(t *testing.T) {
	ts := NewRecursiveCharacterTextSplitter(20, 0)
	text := strings.Repeat("alpha beta gamma\n\n", 20)

	out, err := ts.Budget(text, 60)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(out)), 60+5)
	assert.True(t, strings.HasPrefix(out, "alpha beta gamma"))
}

func TestBudgetCutsOversizedFirstChunk(t *testing.T) {
	ts := NewRecursiveCharacterTextSplitter(1000, 0)
	text := strings.Repeat("x", 500)

	out, err := ts.Budget(text, 100)
	require.NoError(t, err)
	assert.Len(t, out, 100)
}
