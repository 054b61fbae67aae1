package response

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

type fakeGenerator struct {
	out       string
	err       error
	gotSystem string
	gotInput  string
}

func (f *fakeGenerator) Generate(_ context.Context, system, input string) (string, error) {
	f.gotSystem = system
	f.gotInput = input
	return f.out, f.err
}

func TestHumanizerSanitizesOutput(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{out: "[SALES] Added your burgers! Your order is now BUILDING_ORDER ."}
	h, err := NewHumanizer(gen, "humanize")
	require.NoError(t, err)

	reply, err := h.Humanize(context.Background(), Draft{
		UserMessage: "two burgers",
		Draft:       "Added 2 Classic Burgers.",
		State:       statex.StateBuildingOrder,
		ToolResults: []contractx.ToolResult{{Tool: "add_item_to_order", Success: true}},
		Feedback:    []string{"too long"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Added your burgers! Your order is now.", reply)
	assert.Equal(t, "humanize", gen.gotSystem)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(gen.gotInput), &payload))
	assert.Equal(t, "Added 2 Classic Burgers.", payload["draft"])
	assert.Equal(t, []any{"too long"}, payload["feedback"])
}

func TestHumanizerErrors(t *testing.T) {
	t.Parallel()

	h, err := NewHumanizer(&fakeGenerator{err: errors.New("down")}, "humanize")
	require.NoError(t, err)
	_, err = h.Humanize(context.Background(), Draft{Draft: "x"})
	assert.ErrorIs(t, err, contractx.ErrModelInvoke)

	h, err = NewHumanizer(&fakeGenerator{out: "  SALES  "}, "humanize")
	require.NoError(t, err)
	_, err = h.Humanize(context.Background(), Draft{Draft: "x"})
	assert.ErrorIs(t, err, ErrEmptyReply)

	_, err = NewHumanizer(nil, "humanize")
	assert.ErrorIs(t, err, contractx.ErrValidation)
	_, err = NewHumanizer(&fakeGenerator{}, " ")
	assert.ErrorIs(t, err, contractx.ErrPromptMissing)
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Here is our menu!", Sanitize("MENU: Here is our menu!"))
	assert.Equal(t, "I called to add it.", Sanitize("I called add_item_to_order to add it."))
	assert.Equal(t, "Check the menu link below.", Sanitize("Check the menu link below."))
	assert.Equal(t, "Line one\nLine two", Sanitize("Line one  \n  CHECKOUT Line two"))
}
