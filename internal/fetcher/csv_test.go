package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV_Basic(t *testing.T) {
	input := "STATE,LICENSE_REGEX\nCA,^\\d{6}$\nFL,^CGC\\d{7}$\n"
	tbl, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"STATE", "LICENSE_REGEX"}, tbl.Header)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, []string{"CA", `^\d{6}$`}, tbl.Rows[0])
	assert.Equal(t, 1, tbl.Column("license_regex"))
	assert.Equal(t, -1, tbl.Column("missing"))
}

func TestReadCSV_StripsBOMAndBlankRows(t *testing.T) {
	input := "\ufeffSTATE,NAME\n\nTX, Texas \n,\n"
	tbl, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)

	assert.Equal(t, "STATE", tbl.Header[0])
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, []string{"TX", "Texas"}, tbl.Rows[0])
}

func TestReadCSV_VariableFieldsAndComments(t *testing.T) {
	input := "a,b,c\n# skipped\n1,2\n4,5,6,7\n"
	tbl, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{Comment: '#'})
	require.NoError(t, err)

	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, []string{"1", "2"}, tbl.Rows[0])
	assert.Len(t, tbl.Rows[1], 4)
}

func TestReadCSV_PipeDelimited(t *testing.T) {
	tbl, err := ReadCSV(context.Background(), strings.NewReader("a|b\n1|2\n"), CSVOptions{Delimiter: '|'})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, tbl.Rows[0])
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing header")
}

func TestReadCSV_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadCSV(ctx, strings.NewReader("a\n1\n"), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}
