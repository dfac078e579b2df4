package verify

import (
	"fmt"
	"io"

	"github.com/ajsharma/cspcheck/internal/events"
)

// WriteFinding prints the meta-tag finding for one page.
func WriteFinding(w io.Writer, pr *events.PageCheckResult) {
	if pr.Found {
		fmt.Fprintf(w, "Found CSP in %s: %s\n", pr.Name, pr.Content)
		return
	}
	fmt.Fprintf(w, "CSP Meta tag NOT found in %s\n", pr.Name)
}

// WriteViolations prints every logged CSP message in emission order, or a
// notice that there were none.
func WriteViolations(w io.Writer, violations *events.ViolationLog) {
	msgs := violations.Messages()
	if len(msgs) == 0 {
		fmt.Fprintln(w, "\nNo CSP violations logged.")
		return
	}

	fmt.Fprintln(w, "\nCSP Violations found:")
	for _, m := range msgs {
		fmt.Fprintln(w, m.Text)
	}
}
