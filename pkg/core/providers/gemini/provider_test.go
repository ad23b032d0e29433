package gemini

import (
	"context"
	"errors"
	"io"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/sanchita-suni/Calyx/pkg/core"
)

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(s, genai.RoleModel)}},
	}
}

func fakeStream(parts []string, tail error, gotModel *string, gotCfg **genai.GenerateContentConfig) streamFunc {
	return func(_ context.Context, model string, _ []*genai.Content, cfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
		*gotModel = model
		*gotCfg = cfg
		return func(yield func(*genai.GenerateContentResponse, error) bool) {
			for _, p := range parts {
				if !yield(textResponse(p), nil) {
					return
				}
			}
			if tail != nil {
				yield(nil, tail)
			}
		}
	}
}

func TestStreamCompletion_YieldsFragments(t *testing.T) {
	var model string
	var cfg *genai.GenerateContentConfig
	p, err := New(context.Background(), "key", withStream(fakeStream([]string{"[SIGNAL:", "TIMER] Stay", " here."}, nil, &model, &cfg)))
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())

	s, err := p.StreamCompletion(context.Background(), &core.CompletionRequest{
		System:      "sys",
		Messages:    []core.ChatMessage{{Role: core.ChatUser, Content: "hi"}},
		Temperature: 0.35,
	})
	require.NoError(t, err)
	defer s.Close()

	var got string
	for {
		part, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got += part
	}
	assert.Equal(t, "[SIGNAL:TIMER] Stay here.", got)
	assert.Equal(t, DefaultModel, model)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.35, float64(*cfg.Temperature), 1e-6)
	assert.Equal(t, int32(DefaultMaxTokens), cfg.MaxOutputTokens)
	require.NotNil(t, cfg.SystemInstruction)
}

func TestStreamCompletion_ErrorIsCompletionError(t *testing.T) {
	var model string
	var cfg *genai.GenerateContentConfig
	p, err := New(context.Background(), "key", withStream(fakeStream([]string{"a"}, errors.New("quota"), &model, &cfg)))
	require.NoError(t, err)

	s, err := p.StreamCompletion(context.Background(), &core.CompletionRequest{
		Model:    "gemini-1.5-flash",
		Messages: []core.ChatMessage{{Role: core.ChatUser, Content: "hi"}},
	})
	require.NoError(t, err)
	defer s.Close()

	part, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", part)

	_, err = s.Next()
	require.Error(t, err)
	assert.Equal(t, core.ErrCompletion, core.KindOf(err))
	assert.Equal(t, "gemini-1.5-flash", model)
}

func TestBuildContents_MapsRoles(t *testing.T) {
	got := buildContents([]core.ChatMessage{
		{Role: core.ChatUser, Content: "hi"},
		{Role: core.ChatAssistant, Content: "hello"},
		{Role: core.ChatUser, Content: "  "},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "user", got[0].Role)
	assert.Equal(t, "model", got[1].Role)
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(context.Background(), "")
	assert.Error(t, err)
}
