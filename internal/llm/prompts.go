package llm

import (
	"fmt"
	"strings"

	"pmbot/internal/github"
)

const systemPrompt = `You are PM Bot, a project management assistant.

Your role:
- Answer questions about projects, tasks, team members, and deadlines
- Provide concise, actionable insights
- Be friendly and conversational

Response guidelines:
- Keep responses under 400 words
- Use bullet points for lists
- If data is missing, say "I don't have that information yet"

Always base your answers on the provided data. Don't make up information.`

// ConverseMessages assembles the chat payload: system prompt, trimmed
// history, then the current question annotated with the data bundle.
func ConverseMessages(question, dataContext string, history []Message) []Message {
	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: "system", Content: systemPrompt})

	// last 10 turns at most
	if len(history) > 10 {
		history = history[len(history)-10:]
	}
	msgs = append(msgs, history...)

	msgs = append(msgs, Message{
		Role:    "user",
		Content: question + "\n\n--- Available Data ---\n" + dataContext,
	})
	return msgs
}

// ConverseOptions keeps conversational replies bounded and balanced.
func ConverseOptions() *Options {
	return &Options{Temperature: 0.7, TopP: 0.9, NumPredict: 500}
}

// ReviewPrompt builds the code-review prompt for a merged PR.
func ReviewPrompt(d *github.PullDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are an expert code reviewer. Review the following pull request and provide constructive feedback.

**Pull Request Information:**
- Title: %s
- Description: %s
- Files Changed: %d
- Lines Added: +%d
- Lines Removed: -%d

**Code Changes:**
`, orNA(d.Title), orNA(d.Body), d.ChangedFiles, d.Additions, d.Deletions)

	for _, f := range d.Files {
		fmt.Fprintf(&b, "\n--- File: %s ---\n%s\n", f.Filename, f.Patch)
	}

	b.WriteString(`
**Please provide:**
1. **Summary**: Brief overview of what this PR does
2. **Code Quality**: Comment on code structure, readability, and best practices
3. **Potential Issues**: Any bugs, edge cases, or problems you spot
4. **Suggestions**: Improvements or optimizations
5. **Overall Assessment**: Approve, needs changes, or reject

Keep your review concise and actionable. Focus on the most important points.
`)
	return b.String()
}

// ReviewOptions favors focused output.
func ReviewOptions() *Options {
	return &Options{Temperature: 0.3, TopP: 0.9}
}

// SecurityPrompt builds the security-analysis prompt for a merged PR.
func SecurityPrompt(d *github.PullDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a security expert analyzing code changes for vulnerabilities.\n\n**Pull Request:** %s\n\n**Code Changes:**\n", orNA(d.Title))

	for _, f := range d.Files {
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", f.Filename, f.Patch)
	}

	b.WriteString(`
**Security Analysis Required:**
1. **Vulnerabilities**: SQL injection, XSS, CSRF, authentication issues, etc.
2. **Data Exposure**: Sensitive data in logs, hardcoded secrets, insecure storage
3. **Access Control**: Authorization bypasses, privilege escalation
4. **Dependencies**: Vulnerable libraries or packages
5. **Best Practices**: Security misconfigurations

Rate severity as: CRITICAL, HIGH, MEDIUM, LOW, or NONE
Be specific about line numbers and exact issues found.
`)
	return b.String()
}

// SecurityOptions dials temperature down further for the security pass.
func SecurityOptions() *Options {
	return &Options{Temperature: 0.2}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
