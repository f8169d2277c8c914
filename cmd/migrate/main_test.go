package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLog = `url,raw_url,application_name,decision_process,decision_human,reason_process,reason_human
https://a.com,https://a.com/x,chrome,1,1,claims portal,
https://b.com,https://b.com/x,chrome,0,0,precedence/include,
https://a.com,https://a.com/y,chrome,0,1,random fallback,
https://c.com,https://c.com/x,msedge,1,0,random fallback,
https://a.com,https://a.com/z,chrome,1,1,precedence/exclude,
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func urlsIn(t *testing.T, path string) []string {
	t.Helper()
	results, err := readResultLog(path)
	require.NoError(t, err)
	var urls []string
	for _, row := range results.rows {
		urls = append(urls, row[0])
	}
	return urls
}

func TestDedupe(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		assumeYes   bool
		wantRemoved int
		wantURLs    []string
	}{
		{
			name:        "assume yes keeps first occurrence",
			assumeYes:   true,
			wantRemoved: 2,
			wantURLs:    []string{"https://a.com", "https://b.com", "https://c.com"},
		},
		{
			name:        "confirm one decline one",
			input:       "y\nn\n",
			wantRemoved: 1,
			wantURLs:    []string{"https://a.com", "https://b.com", "https://c.com", "https://a.com"},
		},
		{
			name:        "default answer keeps rows",
			input:       "\n\n",
			wantRemoved: 0,
			wantURLs:    []string{"https://a.com", "https://b.com", "https://a.com", "https://c.com", "https://a.com"},
		},
		{
			name:        "invalid answer asks again",
			input:       "maybe\nyes\nno\n",
			wantRemoved: 1,
			wantURLs:    []string{"https://a.com", "https://b.com", "https://c.com", "https://a.com"},
		},
		{
			name:        "closed input keeps rows",
			input:       "",
			wantRemoved: 0,
			wantURLs:    []string{"https://a.com", "https://b.com", "https://a.com", "https://c.com", "https://a.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeLog(t, testLog)
			var out bytes.Buffer

			removed, err := dedupe(path, strings.NewReader(tt.input), &out, tt.assumeYes)

			require.NoError(t, err)
			assert.Equal(t, tt.wantRemoved, removed)
			assert.Equal(t, tt.wantURLs, urlsIn(t, path))
		})
	}
}

func TestDedupePreservesHeaderAndFields(t *testing.T) {
	path := writeLog(t, testLog)

	_, err := dedupe(path, strings.NewReader(""), &bytes.Buffer{}, true)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "url,raw_url,application_name,decision_process,decision_human,reason_process,reason_human", lines[0])
	assert.Equal(t, "https://a.com,https://a.com/x,chrome,1,1,claims portal,", lines[1])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestDedupePromptText(t *testing.T) {
	path := writeLog(t, testLog)
	var out bytes.Buffer

	_, err := dedupe(path, strings.NewReader("n\nn\n"), &out, false)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "https://a.com appears again on line 4 (first on line 2)")
	assert.Contains(t, out.String(), "DELETE line 4? [y/N]: ")
	assert.Contains(t, out.String(), "SKIP: line 6")
}

func TestDedupeErrors(t *testing.T) {
	_, err := dedupe(filepath.Join(t.TempDir(), "missing.csv"), strings.NewReader(""), &bytes.Buffer{}, true)
	assert.ErrorContains(t, err, "opening result log")

	_, err = dedupe(writeLog(t, "link,decision_human\nx,1\n"), strings.NewReader(""), &bytes.Buffer{}, true)
	assert.ErrorContains(t, err, "no url column")

	_, err = dedupe(writeLog(t, ""), strings.NewReader(""), &bytes.Buffer{}, true)
	assert.ErrorContains(t, err, "is empty")
}

func TestAgreement(t *testing.T) {
	report, err := agreement(writeLog(t, testLog))
	require.NoError(t, err)

	assert.Equal(t, tally{Rows: 5, Agreed: 3}, report.Total)
	assert.Equal(t, tally{Rows: 2, Agreed: 2}, report.ByKind[kindPrecedence])
	assert.Equal(t, tally{Rows: 2, Agreed: 0}, report.ByKind[kindRandom])
	assert.Equal(t, tally{Rows: 1, Agreed: 1}, report.ByKind[kindModel])

	var out bytes.Buffer
	report.Print(&out)
	assert.Contains(t, out.String(), "Rows:       5")
	assert.Contains(t, out.String(), "Agreements: 3")
	assert.Contains(t, out.String(), "Rate:       60.0%")
	assert.Contains(t, out.String(), "random fallback  0/2 (0.0%)")
}

func TestAgreementMissingColumn(t *testing.T) {
	_, err := agreement(writeLog(t, "url,decision_process\nhttps://a.com,1\n"))
	assert.ErrorContains(t, err, "no decision_human column")
}

func TestReasonKind(t *testing.T) {
	assert.Equal(t, kindPrecedence, reasonKind("precedence/exclude"))
	assert.Equal(t, kindRandom, reasonKind("random fallback"))
	assert.Equal(t, kindModel, reasonKind("URL had `claims` in path."))
	assert.Equal(t, kindModel, reasonKind(""))
}
