// Package htmlcheck finds Content Security Policy meta tags in raw HTML,
// without a browser.
package htmlcheck

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTTPEquiv is the http-equiv value that declares a policy.
const HTTPEquiv = "Content-Security-Policy"

// Result is the outcome of a static check.
type Result struct {
	Source  string
	Found   bool
	Content string
	// Count is the number of matching meta tags; browsers enforce all of them.
	Count int
}

// Check parses r and reports the first CSP meta tag.
// http-equiv is compared case-insensitively, as browsers do.
func Check(r io.Reader) (*Result, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
			if content, ok := policyContent(n); ok {
				if result.Count == 0 {
					result.Found = true
					result.Content = content
				}
				result.Count++
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return result, nil
}

func policyContent(n *html.Node) (string, bool) {
	var equiv, content string
	var isPolicy bool
	for _, attr := range n.Attr {
		switch attr.Key {
		case "http-equiv":
			equiv = attr.Val
			isPolicy = strings.EqualFold(strings.TrimSpace(equiv), HTTPEquiv)
		case "content":
			content = attr.Val
		}
	}
	return content, isPolicy
}

// CheckSource checks a local file or an http(s) URL.
func CheckSource(source string, timeout time.Duration) (*Result, error) {
	var (
		body io.ReadCloser
		err  error
	)

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		body, err = fetch(source, timeout)
	} else {
		body, err = os.Open(source) //nolint:gosec // user-provided path is intentional
	}
	if err != nil {
		return nil, err
	}
	defer body.Close()

	result, err := Check(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", source, err)
	}
	result.Source = source

	return result, nil
}

func fetch(url string, timeout time.Duration) (io.ReadCloser, error) {
	client := &http.Client{Timeout: timeout}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code fetching %s: %d", url, resp.StatusCode)
	}

	return resp.Body, nil
}
