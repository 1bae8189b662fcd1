package notes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), "", "")
	require.Error(t, err)
}

func TestGeminiParse(t *testing.T) {
	var gotModel, gotNote string
	var gotCfg *genai.GenerateContentConfig
	g := &Gemini{
		model: "notes-model",
		generate: func(_ context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			gotModel = model
			gotNote = contents[0].Parts[0].Text
			gotCfg = cfg
			return &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{
					Content: genai.NewContentFromText(`[{"task":"email the client","priority":"high","type":"task"}]`, genai.RoleModel),
				}},
			}, nil
		},
	}

	drafts, err := g.Parse(context.Background(), "Please email the client")
	require.NoError(t, err)
	require.Equal(t, "notes-model", gotModel)
	require.Equal(t, "Please email the client", gotNote)
	require.Equal(t, "application/json", gotCfg.ResponseMIMEType)
	require.Equal(t, genai.TypeArray, gotCfg.ResponseSchema.Type)
	require.Contains(t, gotCfg.ResponseSchema.Items.Properties, "reminder")
	require.Equal(t, []Draft{{Task: "email the client", Priority: "high", Type: "task"}}, drafts)
}

func TestGeminiParseWrapsErrors(t *testing.T) {
	boom := errors.New("quota")
	g := &Gemini{
		model: DefaultGeminiModel,
		generate: func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return nil, boom
		},
	}
	_, err := g.Parse(context.Background(), "note")
	require.ErrorIs(t, err, boom)
}
