package fixer

import (
	"fmt"
	"strings"

	"github.com/kamilpajak/smarttest/internal/llm"
)

const analyzeSystemPrompt = `You are an expert troubleshooter for Go browser and API tests written with the smarttest harness. Analyze the test code and error log to find the cause of the failure.`

const applySystemPrompt = `You are an expert troubleshooter for Go browser and API tests written with the smarttest harness. Fix the test code based on the error log. Output only the complete corrected Go file, keeping its package clause, with no explanations.`

const suggestSystemPrompt = `You are an expert troubleshooter for Go browser and API tests written with the smarttest harness. Propose the specific code changes that fix the failing test, showing each change as before and after.`

const analyzeInstructions = `Answer in this format:
Issue: what causes the test to fail
Fix: the specific changes needed to fix the test`

const applyInstructions = `Return only the fixed Go file.`

const suggestInstructions = `Show what needs to change, before and after.`

func userPrompt(code []byte, errorLog, instructions string) string {
	var sb strings.Builder
	sb.WriteString("This test has failed.\n\n")
	fmt.Fprintf(&sb, "Test code:\n```go\n%s\n```\n\n", strings.TrimRight(string(code), "\n"))
	fmt.Fprintf(&sb, "Error log:\n```\n%s\n```\n\n", llm.Excerpt(errorLog, MaxLogBytes))
	sb.WriteString(instructions)
	return sb.String()
}
