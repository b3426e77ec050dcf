package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var _ TextGenerator = (*GeminiText)(nil)

// GeminiText generates text through the Gemini Go SDK.
type GeminiText struct {
	client *genai.Client
}

// NewGeminiText creates a text generator authenticated with apiKey.
func NewGeminiText(ctx context.Context, apiKey string) (*GeminiText, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("backend: create gemini client: %w", err)
	}
	return &GeminiText{client: client}, nil
}

// Close releases the underlying client.
func (g *GeminiText) Close() error {
	return g.client.Close()
}

// Generate runs one generation. When req.JSON is set the model is asked for
// application/json, constrained by req.Schema if present.
func (g *GeminiText) Generate(ctx context.Context, req TextRequest) (string, error) {
	model := g.client.GenerativeModel(req.Model)
	if req.Temperature > 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
		if req.Schema != nil {
			model.ResponseSchema = toGenaiSchema(req.Schema)
		}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("backend: empty response from %s", req.Model)
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("backend: response from %s has no text (finish reason %v)", req.Model, resp.Candidates[0].FinishReason)
	}
	return b.String(), nil
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{Description: s.Description, Required: s.Required}
	switch s.Type {
	case "object":
		out.Type = genai.TypeObject
	case "array":
		out.Type = genai.TypeArray
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toGenaiSchema(v)
		}
	}
	out.Items = toGenaiSchema(s.Items)
	return out
}
