package deps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "jardownloader/internal/errors"
)

const sum = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestParseDirectList(t *testing.T) {
	input := `# Dependencies for the test plugin

https://example.org/file1.jar
   https://example.org/file2.jar   
http://mirror.example.org/libs/gson%202.jar sha256:` + strings.ToUpper(sum) + `  # pinned
`
	list, err := Parse(strings.NewReader(input), "dependencies.txt")
	require.NoError(t, err)

	want := []Dependency{
		{URL: "https://example.org/file1.jar", FileName: "file1.jar", Line: 3, Source: "dependencies.txt"},
		{URL: "https://example.org/file2.jar", FileName: "file2.jar", Line: 4, Source: "dependencies.txt"},
		{URL: "http://mirror.example.org/libs/gson%202.jar", FileName: "gson 2.jar", SHA256: sum, Line: 5, Source: "dependencies.txt"},
	}
	if diff := cmp.Diff(want, list.Dependencies); diff != "" {
		t.Fatalf("dependencies mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, list.Invalid)
	assert.Equal(t, 3, list.Len())
}

func TestParseReportsInvalidLines(t *testing.T) {
	input := strings.Join([]string{
		"ftp://example.org/file.jar",
		"just some text",
		"https://example.org/file3.jar",
		"https:///nohost.jar",
		"https://example.org/dir/",
		"https://example.org/a.jar deadbeef",
		"https://example.org/b.jar " + sum + " extra",
	}, "\n")

	list, err := Parse(strings.NewReader(input), "invalid_deps.txt")
	require.NoError(t, err)

	require.Len(t, list.Dependencies, 1)
	assert.Equal(t, "https://example.org/file3.jar", list.Dependencies[0].URL)

	reasons := make(map[string]string)
	for _, inv := range list.Invalid {
		reasons[inv.Text] = inv.Reason
	}
	assert.Equal(t, map[string]string{
		"ftp://example.org/file.jar":                        ReasonNotURL,
		"just some text":                                    ReasonNotURL,
		"https:///nohost.jar":                               ReasonNoHost,
		"https://example.org/dir/":                          ReasonNoFileName,
		"https://example.org/a.jar deadbeef":                ReasonBadChecksum,
		"https://example.org/b.jar " + sum + " extra":       ReasonExtraFields,
	}, reasons)
	assert.Equal(t, 1, list.Invalid[0].Line)
}

func TestParseCollapsesDuplicates(t *testing.T) {
	input := "https://example.org/a.jar\nhttps://example.org/a.jar\nhttps://example.org/b.jar\n"
	list, err := Parse(strings.NewReader(input), "x")
	require.NoError(t, err)

	assert.Equal(t, 2, list.Len())
	assert.Equal(t, 1, list.Duplicates)
}

func TestParseStripsByteOrderMark(t *testing.T) {
	list, err := Parse(strings.NewReader("\ufeffhttps://example.org/a.jar\r\n"), "bom")
	require.NoError(t, err)
	require.Equal(t, 1, list.Len())
	assert.Equal(t, "a.jar", list.Dependencies[0].FileName)
}

func TestParseRejectsOversizedLine(t *testing.T) {
	huge := "https://example.org/" + strings.Repeat("a", MaxLineLength) + ".jar"
	_, err := Parse(strings.NewReader(huge), "huge")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCategoryValidation, apperrors.CategoryOf(err))
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dependencies.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://example.org/file1.jar\n"), 0o644))

	list, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, list.Source)
	assert.Equal(t, path, list.Dependencies[0].Source)

	_, err = ParseFile(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDepFileAbsent))

	_, err = ParseFile(dir)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDepFileAbsent))
}

func TestFileNameFromURL(t *testing.T) {
	name, err := FileNameFromURL("https://repo.example.org/maven2/com/google/gson/2.10/gson-2.10.jar?download=1")
	require.NoError(t, err)
	assert.Equal(t, "gson-2.10.jar", name)

	_, err = FileNameFromURL("https://example.org/")
	assert.Error(t, err)

	_, err = FileNameFromURL("https://example.org/a%2Fb")
	assert.Error(t, err)
}
