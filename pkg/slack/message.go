package slack

import (
	"fmt"
	"time"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

var statusEmoji = map[string]string{
	"completed": ":white_check_mark:",
	"failed":    ":x:",
	"timed_out": ":hourglass:",
	"cancelled": ":no_entry_sign:",
}

var runStatusLabel = map[string]string{
	"completed": "Test Run Completed",
	"failed":    "Test Run Failed",
	"timed_out": "Test Run Timed Out",
	"cancelled": "Test Run Cancelled",
}

var suiteStatusLabel = map[string]string{
	"completed": "Suite Passed",
	"failed":    "Suite Failed",
	"cancelled": "Suite Cancelled",
}

// RunCompletedInput carries the fields a run completion message needs.
type RunCompletedInput struct {
	RunID        string
	RouteName    string
	Status       string
	BotsPassed   int
	BotsFailed   int
	BotsTotal    int
	Duration     time.Duration
	ErrorMessage string
}

// SuiteCompletedInput carries the fields a suite completion message needs.
type SuiteCompletedInput struct {
	SuiteID      string
	Name         string
	Status       string
	TestsPassed  int
	TestsFailed  int
	TestsSkipped int
	TotalTests   int
	Duration     time.Duration
	ErrorMessage string
}

func runURL(runID, dashboardURL string) string {
	return fmt.Sprintf("%s/runs/%s", dashboardURL, runID)
}

func suiteURL(suiteID, dashboardURL string) string {
	return fmt.Sprintf("%s/suites/%s", dashboardURL, suiteID)
}

// BuildRunCompletedMessage creates Block Kit blocks for a run completion
// notification.
func BuildRunCompletedMessage(input RunCompletedInput, dashboardURL string) []goslack.Block {
	emoji := statusEmoji[input.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	label := runStatusLabel[input.Status]
	if label == "" {
		label = "Test Run " + input.Status
	}
	// A run that completed with failing bots is a red result even though
	// its status is "completed".
	if input.Status == "completed" && input.BotsFailed > 0 {
		emoji = statusEmoji["failed"]
		label = "Test Run Failed"
	}

	header := fmt.Sprintf("%s *%s* — `%s`", emoji, label, input.RouteName)
	body := fmt.Sprintf("Bots: %d passed, %d failed of %d · Duration: %s",
		input.BotsPassed, input.BotsFailed, input.BotsTotal,
		input.Duration.Round(time.Second))
	if input.ErrorMessage != "" {
		body += "\n*Error:* " + truncateForSlack(input.ErrorMessage)
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, body, false, false),
			nil, nil,
		),
	}

	btn := goslack.NewButtonBlockElement("", "",
		goslack.NewTextBlockObject(goslack.PlainTextType, "View Run", false, false))
	btn.URL = runURL(input.RunID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

// BuildSuiteCompletedMessage creates Block Kit blocks for a suite completion
// notification.
func BuildSuiteCompletedMessage(input SuiteCompletedInput, dashboardURL string) []goslack.Block {
	emoji := statusEmoji[input.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	label := suiteStatusLabel[input.Status]
	if label == "" {
		label = "Suite " + input.Status
	}

	header := fmt.Sprintf("%s *%s* — `%s`", emoji, label, input.Name)
	body := fmt.Sprintf("Tests: %d passed, %d failed, %d skipped of %d · Duration: %s",
		input.TestsPassed, input.TestsFailed, input.TestsSkipped, input.TotalTests,
		input.Duration.Round(time.Second))
	if input.ErrorMessage != "" {
		body += "\n*Error:* " + truncateForSlack(input.ErrorMessage)
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, body, false, false),
			nil, nil,
		),
	}

	btn := goslack.NewButtonBlockElement("", "",
		goslack.NewTextBlockObject(goslack.PlainTextType, "View Suite", false, false))
	btn.URL = suiteURL(input.SuiteID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated — view details in dashboard)_"
}
