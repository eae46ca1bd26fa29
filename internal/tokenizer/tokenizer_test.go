package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVocab() string {
	return strings.Join([]string{
		TokenPAD, TokenUNK, TokenCLS, TokenSEP, TokenMASK,
		"hello", "world", "play", "##ing", "play##bogus", "##ed", "un", "##known",
	}, "\n")
}

func newTestTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	tok, err := LoadVocab(strings.NewReader(testVocab()), Config{MaxLen: 8})
	require.NoError(t, err)
	require.True(t, tok.Ready())
	return tok
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hello world", Normalize("  Hello\tWorld\n"))
	assert.Equal(t, "héllo", Normalize("Héllo")) // non-ASCII untouched by lowercasing
}

func TestEncodeKnownWords(t *testing.T) {
	tok := newTestTokenizer(t)
	enc := tok.Encode("hello world", true)
	// [CLS] hello world [SEP] [PAD] [PAD] [PAD] [PAD]
	assert.Equal(t, int32(2), enc.InputIDs[0]) // CLS
	assert.Equal(t, int32(3), enc.InputIDs[3]) // SEP
	assert.Equal(t, []int32{1, 1, 1, 1, 0, 0, 0, 0}, enc.AttentionMask)
	assert.False(t, enc.Truncated)
}

func TestWordPieceContinuation(t *testing.T) {
	tok := newTestTokenizer(t)
	ids := tok.wordPiece("playing")
	require.Len(t, ids, 2)
	assert.Equal(t, tok.vocab["play"], ids[0])
	assert.Equal(t, tok.vocab["##ing"], ids[1])
}

func TestWordPieceUnknownWholeWord(t *testing.T) {
	tok := newTestTokenizer(t)
	ids := tok.wordPiece("xyzzy")
	assert.Equal(t, []int32{tok.unkID}, ids)
}

func TestEncodeTruncation(t *testing.T) {
	tok := newTestTokenizer(t)
	enc := tok.Encode("hello world hello world hello world hello world", true)
	assert.True(t, enc.Truncated)
	assert.Len(t, enc.InputIDs, 8)
	assert.Equal(t, tok.sepID, enc.InputIDs[7])
}

func TestEncodeEmptyText(t *testing.T) {
	tok := newTestTokenizer(t)
	enc := tok.Encode("", true)
	assert.Equal(t, tok.clsID, enc.InputIDs[0])
	assert.Equal(t, tok.sepID, enc.InputIDs[1])
	for i := 2; i < len(enc.InputIDs); i++ {
		assert.Equal(t, tok.padID, enc.InputIDs[i])
	}
}
