package retry

import "github.com/iyunix/mcp-openai/internal/services/ai"

var reasonHints = map[ai.Reason]string{
	ai.ReasonInvalidParams: "Check the tool parameters against the allowed values and try again.",
	ai.ReasonAuth:          "Verify that OPENAI_API_KEY is set to a valid key with access to this model.",
	ai.ReasonContentPolicy: "Rephrase the prompt so it complies with the content policy.",
	ai.ReasonQuota:         "Check the OpenAI account billing and usage limits.",
	ai.ReasonNotFound:      "Check that the requested model name is available to this account.",
	ai.ReasonConfig:        "Fix the server configuration and restart it.",
	ai.ReasonCancelled:     "The request was cancelled; re-issue it if the result is still needed.",
	ai.ReasonUnexpected:    "An internal error occurred; report it together with the request id.",
}

const (
	exhaustedHint = "Raise timeout or max_retries, or reduce the image count or simplify the prompt."
	fallbackHint  = "Try again later; if the problem persists, report it together with the request id."
)

// HintFor returns the remediation hint for a classified failure.
func HintFor(kind ai.Kind, reason ai.Reason) string {
	if kind == ai.KindExhausted {
		return exhaustedHint
	}
	if h, ok := reasonHints[reason]; ok {
		return h
	}
	return fallbackHint
}
