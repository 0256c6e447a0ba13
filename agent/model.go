package agent

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Model produces the next model turn for a conversation.
type Model interface {
	Generate(ctx context.Context, contents []*genai.Content) (*genai.Content, error)
}

// GeminiModel is a Model backed by the Gemini computer-use tool.
type GeminiModel struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// GeminiOption configures a GeminiModel.
type GeminiOption func(*genai.ClientConfig, *genai.GenerateContentConfig)

// WithBaseURL points the Gemini client at a different endpoint.
func WithBaseURL(baseURL string) GeminiOption {
	return func(cc *genai.ClientConfig, _ *genai.GenerateContentConfig) {
		cc.HTTPOptions.BaseURL = baseURL
	}
}

// WithExtraction declares the extract_page_content function next to the computer-use tool.
func WithExtraction() GeminiOption {
	return func(_ *genai.ClientConfig, gc *genai.GenerateContentConfig) {
		gc.Tools = append(gc.Tools, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        ActionExtractPageContent,
				Description: extractDescription,
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"instruction": {
							Type:        genai.TypeString,
							Description: "What to extract from the page",
						},
					},
					Required: []string{"instruction"},
				},
			}},
		})
	}
}

// NewGeminiModel creates a Gemini computer-use model from spec.
func NewGeminiModel(ctx context.Context, spec Spec, opts ...GeminiOption) (*GeminiModel, error) {
	if spec.Provider != ProviderGoogle {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, spec.Provider)
	}
	if spec.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if spec.Model == "" {
		return nil, errors.New("gemini model is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  spec.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	genCfg := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{
			ComputerUse: &genai.ComputerUse{
				Environment: genai.EnvironmentBrowser,
			},
		}},
	}
	if spec.Instructions != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(spec.Instructions, genai.RoleUser)
	}
	for _, opt := range opts {
		opt(clientCfg, genCfg)
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiModel{
		client: client,
		model:  spec.Model,
		config: genCfg,
	}, nil
}

// Generate sends the conversation and returns the first candidate's content.
func (m *GeminiModel) Generate(ctx context.Context, contents []*genai.Content) (*genai.Content, error) {
	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, m.config)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("gemini blocked the prompt: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, errors.New("gemini returned no candidates")
	}
	return resp.Candidates[0].Content, nil
}
