// Package printer writes the CLI's human-facing output: status lines,
// warnings, and the multi-part error blocks every command returns through.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// Keep colors when piped; NO_COLOR still disables them.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)

	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// SetOutput redirects regular and error output. It returns a function that
// restores the previous writers.
func SetOutput(out, errOut io.Writer) (restore func()) {
	prevOut, prevErr := stdout, stderr
	stdout, stderr = out, errOut
	return func() { stdout, stderr = prevOut, prevErr }
}

// Success prints msg in green behind a checkmark.
func Success(format string, a ...any) {
	green.Fprint(stdout, withPrefix("✓ ", fmt.Sprintf(format, a...)))
}

// Info prints msg uncolored.
func Info(format string, a ...any) {
	fmt.Fprintf(stdout, format, a...)
}

// Warning prints msg in yellow behind a warning sign.
func Warning(format string, a ...any) {
	yellow.Fprint(stdout, withPrefix("⚠️  ", fmt.Sprintf(format, a...)))
}

func withPrefix(prefix, msg string) string {
	if strings.HasPrefix(msg, strings.TrimSpace(prefix)) {
		return msg
	}
	return prefix + msg
}

// Error prints a red title, an explanation and suggestions to stderr, and
// returns an error carrying only the title. Commands return it to cobra,
// which is silenced, so the block is printed exactly once.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with key/value details listed between the
// explanation and the suggestions. Keys are printed in sorted order.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(stderr, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(stderr, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(stderr)
		for _, k := range keys {
			fmt.Fprintf(stderr, "  %s: %s\n", k, context[k])
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(stderr, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(stderr, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(stderr, "  %d. %s\n", i+1, s)
		}
	}

	return fmt.Errorf("%s", title)
}

// FormatTickStatus renders the per-tick delivery line shown on the console.
// The producer name is padded to twenty columns so successive lines align.
func FormatTickStatus(status, producerName string, capacity, trust float64) string {
	return fmt.Sprintf("[%s] Chosen Producer: %-20s| Capacity: %s - Local Trust Level %s",
		status,
		producerName,
		strconv.FormatFloat(capacity, 'f', -1, 64),
		strconv.FormatFloat(trust, 'f', 3, 64),
	)
}

// TickStatus prints the delivery line, green on success and red otherwise.
func TickStatus(status, producerName string, capacity, trust float64) {
	line := FormatTickStatus(status, producerName, capacity, trust)
	if status == "Success" {
		green.Fprintln(stdout, line)
		return
	}
	red.Fprintln(stdout, line)
}
