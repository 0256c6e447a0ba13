package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// maxPageChars caps the page text sent to the extraction model.
const maxPageChars = 30000

const extractSystemPrompt = `You extract information from web pages.
Answer the instruction using only the page content provided. Be concise and factual.
If the page does not contain the answer, say so.`

type extractor struct {
	client openai.Client
	model  string
}

func newExtractor(apiKey, baseURL, model string, opts ...option.RequestOption) *extractor {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &extractor{
		client: openai.NewClient(reqOpts...),
		model:  model,
	}
}

func (e *extractor) extract(ctx context.Context, url, pageText, instruction string) (string, error) {
	if strings.TrimSpace(instruction) == "" {
		return "", errors.New("extraction instruction is empty")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Instruction: %s\n\n", instruction)
	if url != "" {
		fmt.Fprintf(&b, "Page URL: %s\n\n", url)
	}
	b.WriteString("Page content:\n")
	b.WriteString(truncate(pageText, maxPageChars))

	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractSystemPrompt),
			openai.UserMessage(b.String()),
		},
	})
	if err != nil {
		return "", fmt.Errorf("extraction request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("extraction model returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	// Avoid splitting a multi-byte rune.
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n\n[page content truncated, %d of %d characters shown]", cut, len(s))
}
