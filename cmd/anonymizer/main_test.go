package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raaihank/llm-anonymizer/internal/anonymizer"
	"github.com/raaihank/llm-anonymizer/internal/patterns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleText = "Contact: jane.doe@example.com or 555-123-4567"

func testConfigFile(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "logging:\n  level: info\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func runCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", testConfigFile(t, "")}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestAnonymizeCommand(t *testing.T) {
	t.Run("Stdin", func(t *testing.T) {
		out, _, err := runCommand(t, sampleText, "anonymize", "-p", "email,phone")
		require.NoError(t, err)
		assert.Equal(t, "Contact: j******e@example.com or ***-***-4567\n", out)
	})

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "in.txt")
		require.NoError(t, os.WriteFile(path, []byte(sampleText+"\n"), 0o600))

		out, _, err := runCommand(t, "", "anonymize", "-p", "email", path)
		require.NoError(t, err)
		assert.Equal(t, "Contact: j******e@example.com or 555-123-4567\n", out)
	})

	t.Run("JSON", func(t *testing.T) {
		out, _, err := runCommand(t, sampleText, "anonymize", "-p", "email,phone", "--json")
		require.NoError(t, err)

		var res anonymizer.Result
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, 2, res.Metadata.ReplacementsCount)
		assert.Equal(t, len(sampleText), res.Metadata.OriginalLength)
	})

	t.Run("Literal", func(t *testing.T) {
		out, _, err := runCommand(t, "mail jane@example.com", "anonymize", "-p", "email", "--literal", "email=[EMAIL]")
		require.NoError(t, err)
		assert.Equal(t, "mail [EMAIL]\n", out)
	})

	t.Run("Remove", func(t *testing.T) {
		out, _, err := runCommand(t, "mail jane@example.com now", "anonymize", "-p", "email", "-s", "remove")
		require.NoError(t, err)
		assert.Equal(t, "mail  now\n", out)
	})

	t.Run("Copy", func(t *testing.T) {
		var copied string
		original := copyToClipboard
		copyToClipboard = func(s string) error {
			copied = s
			return nil
		}
		t.Cleanup(func() { copyToClipboard = original })

		_, stderr, err := runCommand(t, sampleText, "anonymize", "-p", "phone", "--copy")
		require.NoError(t, err)
		assert.Equal(t, "Contact: jane.doe@example.com or ***-***-4567", copied)
		assert.Contains(t, stderr, "Copied to clipboard")
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, _, err := runCommand(t, "", "anonymize", filepath.Join(t.TempDir(), "absent.txt"))
		require.Error(t, err)
	})
}

func TestDetectCommand(t *testing.T) {
	out, _, err := runCommand(t, sampleText, "detect", "-p", "email,phone")
	require.NoError(t, err)
	assert.Contains(t, out, "email")
	assert.Contains(t, out, "phone")
	assert.Contains(t, out, "Risk: LOW (score 4)")
	assert.NotContains(t, out, "jane.doe", "the table never prints matched values")

	out, _, err = runCommand(t, "nothing to see", "detect", "-p", "email")
	require.NoError(t, err)
	assert.Equal(t, "No sensitive data detected\n", out)

	out, _, err = runCommand(t, sampleText, "detect", "-p", "email", "--json")
	require.NoError(t, err)
	var report anonymizer.DetectionReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.TotalCount)
	assert.Equal(t, []string{"jane.doe@example.com"}, report.Detected[patterns.Email].Examples)
}

func TestPatternsCommands(t *testing.T) {
	t.Run("List", func(t *testing.T) {
		out, _, err := runCommand(t, "", "patterns", "list")
		require.NoError(t, err)
		assert.Contains(t, out, patterns.Email)
		assert.Contains(t, out, "Name")
	})

	t.Run("Show", func(t *testing.T) {
		out, _, err := runCommand(t, "", "patterns", "show", patterns.Email)
		require.NoError(t, err)
		assert.Contains(t, out, "Name:        email")

		_, _, err = runCommand(t, "", "patterns", "show", "nope")
		require.Error(t, err)
	})

	t.Run("AddRemoveFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "patterns.yaml")

		out, _, err := runCommand(t, "", "patterns", "add", "employeeId", `EMP-\d{6}`, "-d", "Employee IDs", "--file", file)
		require.NoError(t, err)
		assert.Equal(t, "Pattern 'employeeId' added\n", out)

		_, _, err = runCommand(t, "", "patterns", "add", "ticket", `TCK-[A-Z]{3}`, "--file", file)
		require.NoError(t, err)

		defs, err := patterns.LoadFile(file)
		require.NoError(t, err)
		require.Len(t, defs, 2)
		assert.Equal(t, `EMP-\d{6}`, defs[0].Source)
		assert.Equal(t, "Employee IDs", defs[0].Description)

		out, _, err = runCommand(t, "", "patterns", "remove", "employeeId", "--file", file)
		require.NoError(t, err)
		assert.Equal(t, "Pattern 'employeeId' removed successfully\n", out)

		defs, err = patterns.LoadFile(file)
		require.NoError(t, err)
		require.Len(t, defs, 1)
		assert.Equal(t, "ticket", defs[0].Name)

		_, _, err = runCommand(t, "", "patterns", "remove", "employeeId", "--file", file)
		require.ErrorIs(t, err, patterns.ErrPatternNotFound)
	})

	t.Run("AddInvalid", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "patterns.yaml")
		_, _, err := runCommand(t, "", "patterns", "add", "bad", "([a-z", "--file", file)
		require.Error(t, err)
		assert.Contains(t, err.Error(), anonymizer.CodeInvalidPatternSyntax)
		assert.NoFileExists(t, file)
	})

	t.Run("AddWithoutDestination", func(t *testing.T) {
		_, _, err := runCommand(t, "", "patterns", "add", "employeeId", `EMP-\d{6}`)
		require.Error(t, err)
	})
}

func TestPatternFilesAreLoaded(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "patterns.yaml")
	require.NoError(t, patterns.SaveFile(file, []patterns.Definition{{Name: "employeeId", Source: `EMP-\d{6}`}}))

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetIn(strings.NewReader("id EMP-123456"))
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"--config", testConfigFile(t, "anonymizer:\n  pattern_files: ['"+file+"']\n"),
		"anonymize", "-p", "employeeId", "-s", "replace",
	})
	require.NoError(t, cmd.Execute())
	assert.NotContains(t, stdout.String(), "EMP-123456")
}

func TestInvalidCustomPatternIsSkipped(t *testing.T) {
	extra := "anonymizer:\n  custom_patterns:\n" +
		"    - name: employeeId\n      pattern: 'EMP-\\d{6}'\n" +
		"    - name: broken\n      pattern: '([a-z'\n"

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetIn(strings.NewReader("id EMP-123456"))
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"--config", testConfigFile(t, extra),
		"anonymize", "-p", "employeeId", "-s", "replace",
	})
	require.NoError(t, cmd.Execute())
	assert.NotContains(t, stdout.String(), "EMP-123456")
	assert.True(t, strings.HasPrefix(stdout.String(), "id "))
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(in, []byte("id,text\n1,mail jane@example.com\n2,plain\n"), 0o600))
	out := filepath.Join(dir, "out.jsonl")

	_, stderr, err := runCommand(t, "", "batch", "-p", "email", "-o", out, filepath.Join(dir, "*.csv"))
	require.NoError(t, err)
	assert.Contains(t, stderr, "2 ok, 0 failed")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"anonymized_text":"mail j**e@example.com"`)
	assert.Contains(t, lines[1], `"risk_level":"NONE"`)
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCommand(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "llm-anonymizer "+version)
}

func TestReloadPatterns(t *testing.T) {
	cfg, _, err := newCommandContext(new(string), new(bool)).ensureConfig()
	require.NoError(t, err)

	log, err := newCommandContext(new(string), new(bool)).ensureLogger(true)
	require.NoError(t, err)

	p, err := buildPipeline(cfg, log.Logger)
	require.NoError(t, err)

	var changes []string
	p.Observe(func(e anonymizer.Event) {
		if e.Change != nil {
			changes = append(changes, e.Change.Action+":"+e.Change.Definition.Name)
		}
	})

	cfg.Anonymizer.CustomPatterns = []patterns.Definition{
		{Name: "employeeId", Source: `EMP-\d{6}`},
		{Name: "broken", Source: "([a-z"},
	}
	reloadPatterns(p, cfg, log.Logger)
	reloadPatterns(p, cfg, log.Logger)

	cfg.Anonymizer.CustomPatterns[0].Source = `EMP-\d{8}`
	reloadPatterns(p, cfg, log.Logger)

	assert.Equal(t, []string{"added:employeeId", "overwritten:employeeId"}, changes)
}
