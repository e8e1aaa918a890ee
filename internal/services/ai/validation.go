package ai

import (
	"fmt"
	"slices"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	MinTemperature = 0
	MaxTemperature = 2
	MinMaxTokens   = 1
	MaxMaxTokens   = 4000
	MinImageCount  = 1
	MaxImageCount  = 10
)

// ChatModels lists the completion models the tool accepts.
var ChatModels = []string{openai.GPT4, openai.GPT3Dot5Turbo}

// ImageModels lists the image models in preference order.
var ImageModels = []string{openai.CreateImageModelDallE3, openai.CreateImageModelDallE2}

// AllImageSizes is the union of sizes across image models.
var AllImageSizes = []string{
	openai.CreateImageSize1024x1024,
	openai.CreateImageSize512x512,
	openai.CreateImageSize256x256,
	openai.CreateImageSize1792x1024,
	openai.CreateImageSize1024x1792,
}

// AllImageQualities is the union of qualities across image models.
var AllImageQualities = []string{openai.CreateImageQualityStandard, openai.CreateImageQualityHD}

type imageCapabilities struct {
	sizes     []string
	qualities []string
}

// dall-e-3 accepts a superset of what dall-e-2 does.
var imageModelCapabilities = map[string]imageCapabilities{
	openai.CreateImageModelDallE3: {
		sizes:     AllImageSizes,
		qualities: AllImageQualities,
	},
	openai.CreateImageModelDallE2: {
		sizes: []string{
			openai.CreateImageSize1024x1024,
			openai.CreateImageSize512x512,
			openai.CreateImageSize256x256,
		},
		qualities: []string{openai.CreateImageQualityStandard},
	},
}

// Validate enforces the completion parameter domains before dispatch.
func (r CompletionRequest) Validate() error {
	const op = "completion"
	if strings.TrimSpace(r.Query) == "" {
		return NewValidationError(op, "query must not be empty")
	}
	if !slices.Contains(ChatModels, r.Model) {
		return NewValidationError(op, fmt.Sprintf("model %q is not one of %s", r.Model, strings.Join(ChatModels, ", ")))
	}
	if r.Temperature < MinTemperature || r.Temperature > MaxTemperature {
		return NewValidationError(op, fmt.Sprintf("temperature %.2f outside [%d,%d]", r.Temperature, MinTemperature, MaxTemperature))
	}
	if r.MaxTokens < MinMaxTokens || r.MaxTokens > MaxMaxTokens {
		return NewValidationError(op, fmt.Sprintf("max_tokens %d outside [%d,%d]", r.MaxTokens, MinMaxTokens, MaxMaxTokens))
	}
	return nil
}

// Validate enforces the image parameter domains, including the per-model
// size and quality matrix.
func (r ImageRequest) Validate() error {
	const op = "image"
	if strings.TrimSpace(r.Prompt) == "" {
		return NewValidationError(op, "prompt must not be empty")
	}
	caps, ok := imageModelCapabilities[r.Model]
	if !ok {
		return NewValidationError(op, fmt.Sprintf("model %q is not one of %s", r.Model, strings.Join(ImageModels, ", ")))
	}
	if r.N < MinImageCount || r.N > MaxImageCount {
		return NewValidationError(op, fmt.Sprintf("n %d outside [%d,%d]", r.N, MinImageCount, MaxImageCount))
	}
	if !slices.Contains(caps.sizes, r.Size) {
		return NewValidationError(op, fmt.Sprintf("size %q is not supported by %s (supported: %s)", r.Size, r.Model, strings.Join(caps.sizes, ", ")))
	}
	if !slices.Contains(caps.qualities, r.Quality) {
		return NewValidationError(op, fmt.Sprintf("quality %q is not supported by %s (supported: %s)", r.Quality, r.Model, strings.Join(caps.qualities, ", ")))
	}
	return nil
}

// Orientation describes the aspect of an image size.
func Orientation(size string) string {
	switch size {
	case openai.CreateImageSize1792x1024:
		return "landscape"
	case openai.CreateImageSize1024x1792:
		return "portrait"
	default:
		return "square"
	}
}
