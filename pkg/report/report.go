// Package report renders test run and suite run results as human-readable
// text and as JSON. Rendering is pure; WriteFile helpers place reports in a
// directory for download and retention.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/warbandhq/warband/pkg/models"
)

// Text renders a run report: status banner, per-bot task breakdown, and
// aggregate counters.
func Text(run *models.TestRun) string {
	var b strings.Builder

	banner := strings.ToUpper(string(run.Status))
	fmt.Fprintf(&b, "==== TEST RUN %s [%s] ====\n", run.ID, banner)
	fmt.Fprintf(&b, "Route:    %s (%s)\n", run.RouteName, run.RoutePath)
	if run.Author != "" {
		fmt.Fprintf(&b, "Author:   %s\n", run.Author)
	}
	fmt.Fprintf(&b, "Started:  %s\n", run.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration: %s\n", run.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "Bots:     %d total, %d passed, %d failed\n",
		len(run.Bots), run.BotsPassed(), run.BotsFailed())
	if run.ErrorMessage != "" {
		fmt.Fprintf(&b, "Error:    %s\n", run.ErrorMessage)
	}

	for _, bot := range run.Bots {
		b.WriteString("\n")
		writeBotSection(&b, bot)
	}
	return b.String()
}

func writeBotSection(b *strings.Builder, bot *models.BotResult) {
	verdict := "FAILED"
	if bot.Success {
		verdict = "PASSED"
	} else if !bot.Complete {
		verdict = "INCOMPLETE"
	}
	fmt.Fprintf(b, "-- %s [%s]", bot.BotName, verdict)
	if bot.CharacterName != "" {
		fmt.Fprintf(b, " (%s, %s)", bot.CharacterName, bot.Class)
	}
	fmt.Fprintf(b, " %d/%d tasks, %s\n",
		bot.TasksCompleted(), bot.TotalTasks, bot.Duration().Round(time.Millisecond))
	if bot.ErrorMessage != "" {
		fmt.Fprintf(b, "   error: %s\n", bot.ErrorMessage)
	}

	for i, entry := range bot.Tasks {
		fmt.Fprintf(b, "   %2d. %-24s %-8s %s", i+1, entry.TaskName,
			entry.Result, entry.Duration.Round(time.Millisecond))
		if entry.ErrorMessage != "" {
			fmt.Fprintf(b, "  (%s)", entry.ErrorMessage)
		}
		b.WriteString("\n")
	}
}

// JSON renders a run report as indented JSON mirroring the models schema.
func JSON(run *models.TestRun) ([]byte, error) {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run report: %w", err)
	}
	return data, nil
}

// SuiteText renders a suite report: suite banner, one line per constituent
// run, and aggregate counters.
func SuiteText(suite *models.SuiteRun) string {
	var b strings.Builder

	banner := strings.ToUpper(string(suite.Status))
	fmt.Fprintf(&b, "==== SUITE %s (%s) [%s] ====\n", suite.Name, suite.ID, banner)
	mode := "sequential"
	if suite.Parallel {
		mode = "parallel"
	}
	fmt.Fprintf(&b, "Mode:     %s\n", mode)
	fmt.Fprintf(&b, "Started:  %s\n", suite.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration: %s\n", suite.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "Tests:    %d total, %d passed, %d failed, %d skipped\n",
		suite.TotalTests, suite.TestsPassed, suite.TestsFailed, suite.TestsSkipped)
	if suite.ErrorMessage != "" {
		fmt.Fprintf(&b, "Error:    %s\n", suite.ErrorMessage)
	}

	if len(suite.Runs) > 0 {
		b.WriteString("\n")
	}
	for _, run := range suite.Runs {
		verdict := "FAILED"
		if run.Passed() {
			verdict = "PASSED"
		}
		fmt.Fprintf(&b, "-- %-32s %-8s run=%s bots=%d/%d %s\n",
			run.RouteName, verdict, run.ID, run.BotsPassed(), len(run.Bots),
			run.Duration().Round(time.Millisecond))
		if run.ErrorMessage != "" {
			fmt.Fprintf(&b, "   error: %s\n", run.ErrorMessage)
		}
	}
	return b.String()
}

// SuiteJSON renders a suite report as indented JSON.
func SuiteJSON(suite *models.SuiteRun) ([]byte, error) {
	data, err := json.MarshalIndent(suite, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal suite report: %w", err)
	}
	return data, nil
}

// WriteRunFiles writes run-{id}.txt and run-{id}.json into dir, creating it
// if needed. Returns the written paths.
func WriteRunFiles(dir string, run *models.TestRun) ([]string, error) {
	jsonData, err := JSON(run)
	if err != nil {
		return nil, err
	}
	return writePair(dir, fmt.Sprintf("run-%s", run.ID), []byte(Text(run)), jsonData)
}

// WriteSuiteFiles writes suite-{id}.txt and suite-{id}.json into dir.
func WriteSuiteFiles(dir string, suite *models.SuiteRun) ([]string, error) {
	jsonData, err := SuiteJSON(suite)
	if err != nil {
		return nil, err
	}
	return writePair(dir, fmt.Sprintf("suite-%s", suite.ID), []byte(SuiteText(suite)), jsonData)
}

func writePair(dir, stem string, text, jsonData []byte) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}
	paths := []string{
		filepath.Join(dir, stem+".txt"),
		filepath.Join(dir, stem+".json"),
	}
	for i, data := range [][]byte{text, jsonData} {
		if err := os.WriteFile(paths[i], data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write report %s: %w", paths[i], err)
		}
	}
	return paths, nil
}
