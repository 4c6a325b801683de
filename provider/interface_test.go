package provider_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akolk/loki-nexus2/model"
	"github.com/akolk/loki-nexus2/provider/testutil"
)

// TestProviderContract runs the behaviour every model.Provider test double
// must satisfy.
func TestProviderContract(t *testing.T) {
	tests := []struct {
		name     string
		provider func() model.Provider
	}{
		{"Mock", func() model.Provider { return testutil.NewMockProvider("test-model") }},
		{"Scripted", func() model.Provider {
			return testutil.NewScriptedProvider("test-model",
				testutil.Turn{Text: "hello"},
				testutil.Turn{Text: "with tools"},
			)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.provider()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			var chunk string
			err := p.Chat(ctx, testutil.SingleUserMessage("Hello"), func(c string, _ []model.ToolCall) error {
				chunk += c
				return nil
			})
			require.NoError(t, err)
			assert.NotEmpty(t, chunk)

			chunk = ""
			err = p.ChatWithTools(ctx, testutil.TestMessages(), testutil.TestMCPTools(), func(c string, _ []model.ToolCall) error {
				chunk += c
				return nil
			})
			require.NoError(t, err)
			assert.NotEmpty(t, chunk)

			assert.Equal(t, "test-model", p.GetModel())
			models, err := p.ListModels(ctx)
			require.NoError(t, err)
			assert.NotEmpty(t, models)
			assert.NoError(t, p.Ping(ctx))
		})
	}
}

func TestScriptedProviderToolCalls(t *testing.T) {
	p := testutil.NewScriptedProvider("m",
		testutil.Turn{ToolCalls: []model.ToolCall{{Name: "data_query", Arguments: map[string]any{"query": "SELECT 1"}}}},
	)

	var got []model.ToolCall
	err := p.ChatWithTools(context.Background(), testutil.SingleUserMessage("q"), testutil.TestMCPTools(), func(_ string, calls []model.ToolCall) error {
		got = append(got, calls...)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "data_query", got[0].Name)
	assert.Len(t, p.Tools()[0], 2)

	err = p.ChatWithTools(context.Background(), nil, nil, func(string, []model.ToolCall) error { return nil })
	assert.Error(t, err, "script exhausted")
	assert.Len(t, p.Requests(), 2)
}
