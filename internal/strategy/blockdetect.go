package strategy

import (
	"net/http"
	"strings"
)

// BlockType names the anti-bot measure a response tripped.
type BlockType string

const (
	BlockNone        BlockType = ""
	BlockCloudflare  BlockType = "cloudflare"
	BlockCaptcha     BlockType = "captcha"
	BlockJSShell     BlockType = "js_shell"
	BlockRateLimited BlockType = "rate_limited"
)

// DetectBlock inspects a lookup response for anti-bot interstitials. A
// blocked page never contains license data, so the static fetch fails
// instead of handing it to extraction.
func DetectBlock(resp *http.Response, body []byte) BlockType {
	if resp == nil {
		return BlockNone
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return BlockRateLimited
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" ||
			strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return BlockCloudflare
	}

	if strings.Contains(lower, "g-recaptcha") ||
		strings.Contains(lower, "h-captcha") ||
		strings.Contains(lower, "hcaptcha") ||
		strings.Contains(lower, "captcha") && strings.Contains(lower, "robot") {
		return BlockCaptcha
	}

	// Tiny shells that only bootstrap a JS app or bounce via meta refresh.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return BlockJSShell
		}
	}

	return BlockNone
}
