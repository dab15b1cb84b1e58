package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/api"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/pipeline"
)

const smallCorpus = `[
  {"text": "great book loved it", "sentiment": "positive", "score": 5},
  {"text": "book was terrible hated it", "sentiment": "negative", "score": 1},
  {"text": "great story loved characters", "sentiment": "positive", "score": 4}
]`

var smallParams = []string{"--k", "2", "--min-df", "1", "--max-df", "1.0"}

func writeCorpus(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"run", "sweep", "vocab", "submit"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestRunCmd_RequiresExactlyOneArg(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestRunCmd_HasParamFlags(t *testing.T) {
	for _, name := range []string{"strategy", "k", "min-df", "max-df", "top-n", "seed"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "s", runCmd.Flags().Lookup("strategy").Shorthand)
}

func TestRunCmd_JSON(t *testing.T) {
	path := writeCorpus(t, "reviews.json", smallCorpus)
	out, err := execute(t, append([]string{"run", path, "--json"}, smallParams...)...)
	require.NoError(t, err)

	var result pipeline.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Documents, 3)
	assert.Len(t, result.Clusters, 2)
	assert.Equal(t, result.Documents[0].ClusterID, result.Documents[2].ClusterID)
	assert.Len(t, result.Summaries, 2)
	assert.Equal(t, 2, result.Params.K)
}

func TestRunCmd_Table(t *testing.T) {
	path := writeCorpus(t, "reviews.csv", "title,sentiment\n"+
		"great book loved it,positive\n"+
		"book was terrible hated it,negative\n"+
		"great story loved characters,positive\n")
	out, err := execute(t, append([]string{"run", path, "--json=false"}, smallParams...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "CLUSTER")
	assert.Contains(t, out, "positive=2")
	assert.Contains(t, out, "k=2, 3 documents")
}

func TestRunCmd_SentimentFilter(t *testing.T) {
	t.Cleanup(func() { sentimentFilter = "" })
	path := writeCorpus(t, "reviews.json", smallCorpus)
	out, err := execute(t, append([]string{"run", path, "--json=false", "--sentiment", "negative"}, smallParams...)...)
	require.NoError(t, err)
	assert.Contains(t, out, `1 reviews with sentiment "negative"`)
	assert.Contains(t, out, "book was terrible hated it")
	assert.NotContains(t, out, "great story loved characters\n")
}

func TestRunCmd_InvalidK(t *testing.T) {
	path := writeCorpus(t, "reviews.json", smallCorpus)
	_, err := execute(t, "run", path, "--k", "11", "--min-df", "1", "--max-df", "1.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster count")
}

func TestSweepCmd(t *testing.T) {
	path := writeCorpus(t, "reviews.json", smallCorpus)
	out, err := execute(t, append([]string{"sweep", path, "--json", "--ks", "2,3"}, smallParams...)...)
	require.NoError(t, err)

	var points []api.SweepPoint
	require.NoError(t, json.Unmarshal([]byte(out), &points))
	require.Len(t, points, 2)
	assert.Equal(t, 2, points[0].K)
	assert.Equal(t, 3, points[1].K)

	_, err = execute(t, "sweep", path, "--ks", "2,2")
	assert.Error(t, err)
}

func TestVocabCmd(t *testing.T) {
	path := writeCorpus(t, "reviews.json", smallCorpus)
	out, err := execute(t, append([]string{"vocab", path, "--json"}, smallParams...)...)
	require.NoError(t, err)

	var resp api.VocabularyResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, resp.Size, len(resp.Terms))
	assert.NotZero(t, resp.Size)
}

func TestRunCmd_MissingFile(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}
