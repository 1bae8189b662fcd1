package notes

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Gemini parses notes with a structured-output GenerateContent call.
type Gemini struct {
	model    string
	generate generateFunc
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{model: model, generate: client.Models.GenerateContent}, nil
}

func (g *Gemini) Parse(ctx context.Context, note string) ([]Draft, error) {
	resp, err := g.generate(ctx, g.model, genai.Text(note), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(Instructions, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    draftSchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if resp == nil {
		return nil, ErrNoContent
	}
	return DecodeDrafts(resp.Text())
}

func draftSchema() *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"task":        str("short imperative description"),
				"deadline":    str("deadline as spoken, or empty"),
				"reminder":    str("RFC 3339 timestamp or none"),
				"priority":    {Type: genai.TypeString, Enum: []string{"low", "medium", "high"}},
				"type":        {Type: genai.TypeString, Enum: []string{"task", "follow_up", "meeting", "reminder"}},
				"responsible": str("person responsible, or empty"),
			},
			Required: []string{"task", "priority", "type", "reminder"},
		},
	}
}
