package cdp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// BrowserInfo holds information about a running Chrome instance.
type BrowserInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	V8Version            string `json:"V8-Version"`
	WebKitVersion        string `json:"WebKit-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// DiscoverBrowserInfo queries the /json/version endpoint to get browser info.
func DiscoverBrowserInfo(port string) (*BrowserInfo, error) {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/json/version", port))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Chrome on port %s: %w", port, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var info BrowserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode browser info: %w", err)
	}
	if info.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("chrome on port %s did not report a debugger URL", port)
	}

	return &info, nil
}

// WaitForChrome polls /json/version until Chrome answers or timeout elapses.
func WaitForChrome(port string, timeout time.Duration) (*BrowserInfo, error) {
	deadline := time.Now().Add(timeout)

	var lastErr error
	for {
		info, err := DiscoverBrowserInfo(port)
		if err == nil {
			return info, nil
		}
		lastErr = err

		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	return nil, fmt.Errorf("chrome not available on port %s after %v: %w", port, timeout, lastErr)
}
