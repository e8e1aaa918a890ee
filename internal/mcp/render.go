package mcp

import (
	"fmt"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/iyunix/mcp-openai/internal/services"
	"github.com/iyunix/mcp-openai/internal/services/ai"
)

const answerPrefix = "OpenAI answer:"

func textBlock(text string) mcpsdk.Content {
	return &mcpsdk.TextContent{Text: text}
}

func toolError(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{IsError: true, Content: []mcpsdk.Content{textBlock(text)}}
}

func renderError(result *services.ToolResult) *mcpsdk.CallToolResult {
	out := result.Outcome
	return toolError(fmt.Sprintf("%s\nRequest ID: %s", out.Summary(), out.RequestID))
}

func renderAnswer(result *services.ToolResult) *mcpsdk.CallToolResult {
	if result.Outcome.Failed() {
		return renderError(result)
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{textBlock(answerPrefix + "\n" + result.Outcome.Payload.Text)},
	}
}

// renderImages keeps upstream order: one summary, then a preview and a link
// block per image.
func renderImages(req services.ImageToolRequest, result *services.ToolResult) *mcpsdk.CallToolResult {
	if result.Outcome.Failed() {
		return renderError(result)
	}

	n := len(result.Images)
	blocks := make([]mcpsdk.Content, 0, 1+2*n)
	noun := "image"
	if n != 1 {
		noun = "images"
	}
	blocks = append(blocks, textBlock(fmt.Sprintf("Generated %d %s %s (%s, %s quality) with %s for prompt: %q",
		n, ai.Orientation(req.Size), noun, req.Size, req.Quality, req.Model, req.Prompt)))

	for i, img := range result.Images {
		if img.Preview != nil {
			blocks = append(blocks, &mcpsdk.ImageContent{
				Data:     img.Preview.Data,
				MIMEType: img.Preview.MediaType,
			})
		}
		blocks = append(blocks, textBlock(describeImage(i, n, img)))
	}
	return &mcpsdk.CallToolResult{Content: blocks}
}

func describeImage(i, n int, img services.RenderedImage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Image %d of %d", i+1, n)
	if img.URL != "" {
		fmt.Fprintf(&b, "\nOriginal URL: %s", img.URL)
	}
	if img.DownloadURL != "" {
		fmt.Fprintf(&b, "\nDownload: %s", img.DownloadURL)
		if !img.LinkExpires.IsZero() {
			fmt.Fprintf(&b, " (expires %s)", img.LinkExpires.UTC().Format(time.RFC3339))
		}
	}
	if img.RevisedPrompt != "" {
		fmt.Fprintf(&b, "\nRevised prompt: %s", img.RevisedPrompt)
	}
	if img.PreviewError != "" {
		fmt.Fprintf(&b, "\nPreview unavailable: %s", img.PreviewError)
	}
	return b.String()
}
