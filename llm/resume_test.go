package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mirascope/mirascope-sub001/content"
	"github.com/Mirascope/mirascope-sub001/format"
	"github.com/Mirascope/mirascope-sub001/toolkit"
)

func mathToolkit(t *testing.T) *toolkit.Toolkit {
	t.Helper()
	type sqrtParams struct {
		N float64 `json:"n"`
	}
	type sumParams struct {
		Values []float64 `json:"values"`
	}
	sqrt := toolkit.New("sqrt", "Square root of n.", sqrtParams{}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var params sqrtParams
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, err
		}
		return math.Sqrt(params.N), nil
	})
	sum := toolkit.New("sum", "Sum of values.", sumParams{}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var params sumParams
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, err
		}
		total := 0.0
		for _, v := range params.Values {
			total += v
		}
		return total, nil
	})
	kit, err := toolkit.NewToolkit(sqrt, sum)
	require.NoError(t, err)
	return kit
}

func TestResponse_Resume(t *testing.T) {
	adapter := newFakeAdapter("fake",
		fakeTurn{reply: textReply("Hello!")},
		fakeTurn{reply: textReply("Still here.")},
	)
	model := NewModel(adapter, "fake-large")

	first, err := model.Call(context.Background(), []content.Message{content.UserMessage("Hi")}, nil)
	require.NoError(t, err)

	second, err := first.Resume(context.Background(), content.TextPart("Are you there?"))
	require.NoError(t, err)
	require.Len(t, second.Messages, 4)
	assert.Equal(t, "Are you there?", second.Messages[2].Text())
	assert.Equal(t, "Still here.", second.Text())

	// The prior response is untouched.
	assert.Len(t, first.Messages, 2)
}

func TestResponse_Resume_PairingErrors(t *testing.T) {
	call := func(t *testing.T) *Response {
		adapter := newFakeAdapter("fake", fakeTurn{reply: toolCallReply(
			content.ToolCallBlock{Id: "c1", Name: "sqrt", Arguments: `{"n":16}`},
			content.ToolCallBlock{Id: "c2", Name: "sqrt", Arguments: `{"n":9}`},
		)})
		model := NewModel(adapter, "fake-large")
		resp, err := model.Call(context.Background(), []content.Message{content.UserMessage("roots")}, &CallOptions{Tools: mathToolkit(t)})
		require.NoError(t, err)
		return resp
	}
	output := func(id string) content.Part {
		part, err := content.ToolOutputPart(id, "sqrt", 4.0)
		require.NoError(t, err)
		return part
	}

	t.Run("unknown call id", func(t *testing.T) {
		resp := call(t)
		_, err := resp.Resume(context.Background(), output("bogus"))
		var pairingErr *PairingError
		require.ErrorAs(t, err, &pairingErr)
		assert.Equal(t, "bogus", pairingErr.ToolCallId)
		assert.Len(t, resp.Messages, 2)
	})

	t.Run("unanswered call", func(t *testing.T) {
		resp := call(t)
		_, err := resp.Resume(context.Background(), output("c1"))
		var pairingErr *PairingError
		require.ErrorAs(t, err, &pairingErr)
		assert.Equal(t, "c2", pairingErr.ToolCallId)
	})

	t.Run("call answered twice", func(t *testing.T) {
		resp := call(t)
		_, err := resp.Resume(context.Background(), output("c1"), output("c1"), output("c2"))
		var pairingErr *PairingError
		require.ErrorAs(t, err, &pairingErr)
		assert.Equal(t, "c1", pairingErr.ToolCallId)
	})
}

func TestRunTools_ChainedCalls(t *testing.T) {
	adapter := newFakeAdapter("fake",
		fakeTurn{reply: toolCallReply(
			content.ToolCallBlock{Id: "c1", Name: "sqrt", Arguments: `{"n":16}`},
			content.ToolCallBlock{Id: "c2", Name: "sqrt", Arguments: `{"n":9}`},
		)},
		fakeTurn{reply: toolCallReply(
			content.ToolCallBlock{Id: "c3", Name: "sum", Arguments: `{"values":[4,3]}`},
		)},
		fakeTurn{reply: textReply("The answer is 7.")},
	)
	model := NewModel(adapter, "fake-large")

	resp, handoff, err := model.RunTools(context.Background(),
		[]content.Message{content.UserMessage("sqrt(16) + sqrt(9)?")},
		&CallOptions{Tools: mathToolkit(t)}, 5)
	require.NoError(t, err)
	assert.Nil(t, handoff)
	assert.Equal(t, "The answer is 7.", resp.Text())

	// Both sqrt outputs went back in call order before the sum turn.
	reqs := adapter.recorded()
	require.Len(t, reqs, 3)
	outputs := reqs[1].Messages[len(reqs[1].Messages)-1].ToolOutputs()
	require.Len(t, outputs, 2)
	assert.Equal(t, "c1", outputs[0].ToolCallId)
	assert.JSONEq(t, "4", string(outputs[0].Value))
	assert.Equal(t, "c2", outputs[1].ToolCallId)
	assert.JSONEq(t, "3", string(outputs[1].Value))
}

func TestRunTools_JSONFormatWaitsForFinalTurn(t *testing.T) {
	adapter := newFakeAdapter("fake",
		fakeTurn{reply: toolCallReply(
			content.ToolCallBlock{Id: "c1", Name: "sqrt", Arguments: `{"n":16}`},
		)},
		fakeTurn{reply: textReply(`{"title":"Roots","minutes":4}`)},
	)
	model := NewModel(adapter, "fake-large")
	opts := &CallOptions{Tools: mathToolkit(t), Format: format.New("recipe", recipe{}, format.ModeJSON)}

	resp, handoff, err := model.RunTools(context.Background(),
		[]content.Message{content.UserMessage("sqrt(16), then a recipe")}, opts, 5)
	require.NoError(t, err)
	assert.Nil(t, handoff)

	// The tool turn went straight to execution: two requests, the second
	// carrying the tool output.
	reqs := adapter.recorded()
	require.Len(t, reqs, 2)
	outputs := reqs[1].Messages[len(reqs[1].Messages)-1].ToolOutputs()
	require.Len(t, outputs, 1)
	assert.Equal(t, "c1", outputs[0].ToolCallId)

	// The tool turn has no JSON payload, but it never enters the corrective
	// channel, so the history carries no corrective message.
	for _, msg := range resp.Messages {
		if msg.Role == content.RoleUser {
			assert.NotContains(t, msg.Text(), "could not be parsed")
		}
	}

	value, err := Format[recipe](resp)
	require.NoError(t, err)
	assert.Equal(t, recipe{Title: "Roots", Minutes: 4}, value)
}

func TestRunTools_ToolFormatWaitsForFinalTurn(t *testing.T) {
	adapter := newFakeAdapter("fake",
		fakeTurn{reply: toolCallReply(
			content.ToolCallBlock{Id: "c1", Name: "sqrt", Arguments: `{"n":16}`},
		)},
		fakeTurn{reply: toolCallReply(
			content.ToolCallBlock{Id: "c2", Name: format.OutputToolName, Arguments: `{"title":"Roots","minutes":4}`},
		)},
	)
	model := NewModel(adapter, "fake-large")
	opts := &CallOptions{Tools: mathToolkit(t), Format: format.New("recipe", recipe{}, format.ModeTool)}

	resp, handoff, err := model.RunTools(context.Background(),
		[]content.Message{content.UserMessage("sqrt(16), then a recipe")}, opts, 5)
	require.NoError(t, err)
	assert.Nil(t, handoff)

	// The sqrt turn executed rather than failing payload location, and the
	// synthetic output call on the final turn is payload, not a tool to run.
	require.Len(t, adapter.recorded(), 2)
	assert.Empty(t, resp.ToolCalls())

	value, err := Format[recipe](resp)
	require.NoError(t, err)
	assert.Equal(t, recipe{Title: "Roots", Minutes: 4}, value)
}

func TestRunTools_Handoff(t *testing.T) {
	askHuman := toolkit.New("ask_human", "Escalates to a person.", struct{}{}, func(ctx context.Context, args json.RawMessage) (any, error) {
		return toolkit.Handoff{Reason: "needs sign-off"}, nil
	})
	kit, err := toolkit.NewToolkit(askHuman)
	require.NoError(t, err)

	adapter := newFakeAdapter("fake", fakeTurn{reply: toolCallReply(
		content.ToolCallBlock{Id: "c1", Name: "ask_human", Arguments: "{}"},
	)})
	model := NewModel(adapter, "fake-large")

	resp, handoff, err := model.RunTools(context.Background(),
		[]content.Message{content.UserMessage("deploy to prod")},
		&CallOptions{Tools: kit}, 5)
	require.NoError(t, err)
	require.NotNil(t, handoff)
	assert.Equal(t, "needs sign-off", handoff.Reason)
	// The handoff turn is returned unresumed.
	require.Len(t, resp.ToolCalls(), 1)
	assert.Len(t, adapter.recorded(), 1)
}

func TestExecuteTools_DepsThreading(t *testing.T) {
	type deps struct{ Region string }
	whereAmI := toolkit.NewContextTool("where_am_i", "Reports the deployment region.", struct{}{},
		func(ctx context.Context, d any, args json.RawMessage) (any, error) {
			return fmt.Sprintf("region: %s", d.(deps).Region), nil
		})
	kit, err := toolkit.NewToolkit(whereAmI)
	require.NoError(t, err)

	adapter := newFakeAdapter("fake", fakeTurn{reply: toolCallReply(
		content.ToolCallBlock{Id: "c1", Name: "where_am_i", Arguments: "{}"},
	)})
	model := NewModel(adapter, "fake-large")

	resp, err := model.Call(context.Background(),
		[]content.Message{content.UserMessage("where are you running?")},
		&CallOptions{Tools: kit, Context: NewContext(deps{Region: "eu-west-1"})})
	require.NoError(t, err)

	execution, err := resp.ExecuteTools(context.Background())
	require.NoError(t, err)
	require.Len(t, execution.Outputs, 1)
	assert.JSONEq(t, `"region: eu-west-1"`, string(execution.Outputs[0].ToolOutput.Value))
}

func TestResponse_Resume_CrossBackend(t *testing.T) {
	first := NewModel(newFakeAdapter("first", fakeTurn{reply: textReply("hello from first")}), "first-model")
	second := NewModel(newFakeAdapter("second", fakeTurn{reply: textReply("hello from second")}), "second-model")

	lctx := NewContext(nil)
	resp, err := first.Call(context.Background(),
		[]content.Message{content.UserMessage("Hi")},
		&CallOptions{Context: lctx})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Provider)

	scope := lctx.UseModel(second)
	defer func() { require.NoError(t, scope.Exit()) }()

	next, err := resp.Resume(context.Background(), content.TextPart("continue"))
	require.NoError(t, err)
	assert.Equal(t, "second", next.Provider)
	// The full history crossed over.
	require.Len(t, next.Messages, 4)
	assert.Equal(t, "hello from first", next.Messages[1].Text())
}
