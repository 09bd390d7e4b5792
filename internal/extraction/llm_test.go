package extraction

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeodev/aiscrape/pkg/utils"
)

type stubCaller struct {
	calls     int
	responses []string
	errs      []error
}

func (s *stubCaller) Call(_ context.Context, _ string, _ string) (string, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return "", s.errs[idx]
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return "", nil
}

func TestLLMStrategyParsesFencedJSONResponse(t *testing.T) {
	caller := &stubCaller{responses: []string{"```json\n{\"summary\":\"ok\",\"entities\":[{\"type\":\"Company\",\"data\":{\"name\":\"Acme\"},\"confidence\":1.5}]}\n```"}}
	s := NewLLMStrategy(caller, ProviderLimit{Provider: "anthropic", Models: []string{"claude-x"}, MaxContent: 1000})

	result := s.Extract(context.Background(), Context{Text: "some content", TaskDescription: "find companies"})
	require.True(t, result.Success)
	require.Len(t, result.Entities, 1)
	assert.Equal(t, "Acme", result.Entities[0].Data["name"])
	assert.Equal(t, 1.0, result.Entities[0].Confidence)
}

func TestLLMStrategyFallsThroughOn404(t *testing.T) {
	caller := &stubCaller{
		errs:      []error{&utils.CustomError{Code: http.StatusNotFound, Message: "model not found"}, nil},
		responses: []string{"", "{\"summary\":\"ok\",\"entities\":[]}"},
	}
	s := NewLLMStrategy(caller, ProviderLimit{Provider: "anthropic", Models: []string{"model-a", "model-b"}, MaxContent: 1000})
	result := s.Extract(context.Background(), Context{Text: "content"})
	assert.True(t, result.Success)
	assert.Equal(t, 2, caller.calls)
}

func TestParseLLMResponseNormalizesUnknownType(t *testing.T) {
	entities, err := parseLLMResponse(`{"summary":"x","entities":[{"type":"Spaceship","data":{},"confidence":0.5}]}`)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "Custom", string(entities[0].Type))
}

func TestParseLLMResponseErrorsWithoutJSON(t *testing.T) {
	_, err := parseLLMResponse("not json at all")
	assert.Error(t, err)
}
