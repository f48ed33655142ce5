package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	assert.Equal(t, 12.5, ParseValue(" 12.5 "))
	assert.Equal(t, true, ParseValue("TRUE"))
	assert.Equal(t, false, ParseValue("false"))
	assert.Nil(t, ParseValue("  "))
	assert.Equal(t, "abc", ParseValue("abc"))
	assert.Equal(t, "NaN", ParseValue("NaN"))
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		in   interface{}
		want float64
		ok   bool
	}{
		{3.5, 3.5, true},
		{7, 7, true},
		{int64(8), 8, true},
		{" 42 ", 42, true},
		{"4x", 0, false},
		{"", 0, false},
		{nil, 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := ToFloat(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
	assert.True(t, IsNumeric("1e3"))
	assert.False(t, IsNumeric("Inf"))
}

func TestStringOf(t *testing.T) {
	assert.Equal(t, "", StringOf(nil))
	assert.Equal(t, "3", StringOf(3.0))
	assert.Equal(t, "2.25", StringOf(2.25))
	assert.Equal(t, "true", StringOf(true))
	assert.Equal(t, `["a",1]`, StringOf([]interface{}{"a", 1.0}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd...", Truncate("abcdefghij", 7))
	assert.Equal(t, "çã", Truncate("çãõ", 2))
}

func TestOutputManager(t *testing.T) {
	om := NewOutputManager(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, om.EnsureOutputDirExists())

	path, err := om.GetOutputFilePath("gen-1", "../escape.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(om.BaseOutputDir, "gen-1", "escape.csv"), path)

	_, err = om.GetOutputFilePath("../gen", "x.csv")
	assert.Error(t, err)

	assert.Equal(t, "/api/v1/generations/gen-1/export", om.GetDownloadURL("gen-1"))
}

func TestFileType(t *testing.T) {
	assert.Equal(t, "csv", FileType("a/b.CSV"))
	assert.Equal(t, "json", FileType("rows.json"))
	assert.Equal(t, "tsv", FileType("rows.tsv"))
	assert.Equal(t, "unknown", FileType("rows"))
}
