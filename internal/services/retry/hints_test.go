package retry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iyunix/mcp-openai/internal/services/ai"
)

func TestHintFor(t *testing.T) {
	assert.Contains(t, HintFor(ai.KindExhausted, ai.ReasonTimeout), "timeout")
	assert.Contains(t, HintFor(ai.KindPermanent, ai.ReasonAuth), "OPENAI_API_KEY")
	assert.Contains(t, HintFor(ai.KindPermanent, ai.ReasonContentPolicy), "Rephrase")
	assert.NotEmpty(t, HintFor(ai.KindPermanent, ai.ReasonUnknown))
}
