package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLecture = "A stack is a last-in first-out data structure. " +
	"Elements are pushed onto the top and popped from the top. " +
	"A queue is a first-in first-out data structure. " +
	"Binary trees organize nodes hierarchically. " +
	"Hash tables map keys to values in constant average time."

func TestRetrieveFindsRelevantSentence(t *testing.T) {
	r := NewEvidenceRetriever()

	got := r.Retrieve(sampleLecture, "What is a stack?", 3, DefaultEvidenceMinScore)
	require.NotEmpty(t, got)
	assert.Contains(t, got[0], "stack")
}

func TestRetrieveRespectsTopK(t *testing.T) {
	r := NewEvidenceRetriever()

	got := r.Retrieve(sampleLecture, "data structure", 2, 0.0)
	assert.LessOrEqual(t, len(got), 2)
}

func TestRetrieveIsDeterministic(t *testing.T) {
	r := NewEvidenceRetriever()

	first := r.Retrieve(sampleLecture, "first-in first-out queue", 3, DefaultEvidenceMinScore)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, r.Retrieve(sampleLecture, "first-in first-out queue", 3, DefaultEvidenceMinScore))
	}
}

func TestRetrieveEmptyInputs(t *testing.T) {
	r := NewEvidenceRetriever()

	assert.Empty(t, r.Retrieve("", "query", 3, DefaultEvidenceMinScore))
	assert.Empty(t, r.Retrieve(sampleLecture, "   ", 3, DefaultEvidenceMinScore))
}

func TestRetrieveMinScoreExcludesWeakMatches(t *testing.T) {
	r := NewEvidenceRetriever()

	// 高阈值只留下与查询几乎同词的那一句，部分匹配全部被挡掉
	strict := r.Retrieve(sampleLecture, "Binary trees organize nodes hierarchically", 5, 0.9)
	require.Len(t, strict, 1)
	assert.Contains(t, strict[0], "Binary trees")

	// 部分匹配在默认阈值下能进结果，阈值拉高后被排除而不是放宽
	partial := r.Retrieve(sampleLecture, "data structure", 5, DefaultEvidenceMinScore)
	require.NotEmpty(t, partial)
	assert.Empty(t, r.Retrieve(sampleLecture, "data structure", 5, 0.95))
}

func TestRetrieveNoMatchReturnsEmpty(t *testing.T) {
	r := NewEvidenceRetriever()

	got := r.Retrieve(sampleLecture, "photosynthesis chlorophyll", 3, DefaultEvidenceMinScore)
	assert.Empty(t, got)
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("First one. Second one! Third one? Trailing")
	require.Len(t, got, 4)
	assert.Equal(t, "First one.", got[0])
	assert.Equal(t, "Second one!", got[1])
	assert.Equal(t, "Third one?", got[2])
	assert.Equal(t, "Trailing", got[3])
}

func TestSplitSentencesKeepsAbbreviationRuns(t *testing.T) {
	// 连续终止符算一个句尾
	got := SplitSentences("Really?! Yes.")
	require.Len(t, got, 2)
	assert.Equal(t, "Really?!", got[0])
}

func TestTokenizeDropsStopWords(t *testing.T) {
	got := Tokenize("The stack is a data structure")
	assert.Equal(t, []string{"stack", "data", "structure"}, got)
}
