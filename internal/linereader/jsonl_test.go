package linereader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSONL(t *testing.T) {
	path := writeFile(t, `{"type":"session_meta"}`+"\n"+`{not json`+"\n"+`[1,2]`+"\n"+`{"type":"event_msg"}`+"\n")

	res, err := Read(path, 0)
	require.NoError(t, err)

	parsed, lineErrors := DecodeJSONL(res)

	require.Len(t, parsed, 2)
	assert.Equal(t, 1, parsed[0].LineNumber)
	assert.Equal(t, 4, parsed[1].LineNumber)

	require.Len(t, lineErrors, 2)
	assert.Equal(t, 2, lineErrors[0].Line)
	assert.Equal(t, path, lineErrors[0].File)
	assert.Contains(t, lineErrors[0].Message, "{not json")
	assert.Equal(t, 3, lineErrors[1].Line)
}

func TestDecodeJSONL_TruncatesRawText(t *testing.T) {
	long := "{" + strings.Repeat("x", 1000)
	res, err := Read(writeFile(t, long+"\n"), 0)
	require.NoError(t, err)

	_, lineErrors := DecodeJSONL(res)
	require.Len(t, lineErrors, 1)
	assert.Less(t, len(lineErrors[0].Message), 400)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab…", Truncate("abcdef", 2))
	// never split a multi-byte rune
	assert.Equal(t, "…", Truncate("é", 1))
}
