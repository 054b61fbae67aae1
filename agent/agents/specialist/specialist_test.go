package specialist

import (
	"context"
	"errors"
	"sync"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	llmx "github.com/tanpawarit/chative-commerce/agent/llm"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
	"github.com/tanpawarit/chative-commerce/agent/tool"
)

type fakeToolCallingModel struct {
	mu         sync.Mutex
	responses  []*schema.Message
	err        error
	idx        int
	boundTools []*schema.ToolInfo
}

func (f *fakeToolCallingModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeToolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeToolCallingModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	f.mu.Lock()
	f.boundTools = tools
	f.mu.Unlock()
	return f, nil
}

func assistantText(content string) *schema.Message {
	return &schema.Message{Role: schema.Assistant, Content: content}
}

func toolCall(name, args string) *schema.Message {
	return &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			ID:       "call_" + name,
			Type:     "function",
			Function: schema.FunctionCall{Name: name, Arguments: args},
		}},
	}
}

func capabilityRequest() contractx.CapabilityRequest {
	return contractx.CapabilityRequest{
		UserMessage: "two burgers please",
		Action:      contractx.ActionProcessOrder,
		Context: contractx.ContextualData{
			ConversationID: "c1",
			State:          statex.StateGreeting,
			Metadata:       statex.Metadata{},
		},
	}
}

func TestClassifierSortsAndNormalizesIntents(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{
		assistantText(`{"intents":[{"type":"logistics","confidence":0.8,"priority":2,"extracted_data":{"delivery_type":"pickup"}},{"type":"ORDER","confidence":1.4,"priority":1,"extracted_data":{"items":[{"product_name":"burger","quantity":2}]}},{"type":"DANCE","confidence":0.9,"priority":3}]}`),
	}}
	c, err := newClassifier(context.Background(), fake, "classifier prompt", 0)
	if err != nil {
		t.Fatalf("newClassifier() error = %v", err)
	}

	intents, err := c.Classify(context.Background(), contractx.ClassifierRequest{
		UserMessage:  "two burgers and I'll pick up",
		CurrentState: statex.StateGreeting,
	})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(intents) != 2 {
		t.Fatalf("intents = %#v, want 2", intents)
	}
	if intents[0].Type != contractx.IntentOrder || intents[1].Type != contractx.IntentLogistics {
		t.Fatalf("intent order = %s, %s", intents[0].Type, intents[1].Type)
	}
	if intents[0].Confidence != 1 {
		t.Fatalf("confidence = %v, want clamped to 1", intents[0].Confidence)
	}
	if intents[1].ExtractedData["delivery_type"] != "pickup" {
		t.Fatalf("extracted data = %#v", intents[1].ExtractedData)
	}
}

func TestClassifierFallsBackToUnclear(t *testing.T) {
	t.Parallel()

	cases := map[string]*fakeToolCallingModel{
		"model error":    {err: errors.New("timeout")},
		"malformed json": {responses: []*schema.Message{assistantText(`not json`)}},
		"empty intents":  {responses: []*schema.Message{assistantText(`{"intents":[]}`)}},
		"unknown types":  {responses: []*schema.Message{assistantText(`{"intents":[{"type":"WEATHER","priority":1}]}`)}},
	}
	for name, fake := range cases {
		fake := fake
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c, err := newClassifier(context.Background(), fake, "classifier prompt", 10)
			if err != nil {
				t.Fatalf("newClassifier() error = %v", err)
			}
			intents, err := c.Classify(context.Background(), contractx.ClassifierRequest{UserMessage: "hmm"})
			if err != nil {
				t.Fatalf("Classify() error = %v, want nil", err)
			}
			if len(intents) != 1 || intents[0].Type != contractx.IntentUnclear || intents[0].Confidence != 0.5 {
				t.Fatalf("intents = %#v, want single UNCLEAR", intents)
			}
		})
	}
}

func TestClassifierBackfillsPriority(t *testing.T) {
	t.Parallel()

	intents, err := normalizeIntents(classifierLLMOutput{Intents: []intentLLMOutput{
		{Type: "menu", Confidence: 0.7},
		{Type: "support", Confidence: 0.6},
	}})
	if err != nil {
		t.Fatalf("normalizeIntents() error = %v", err)
	}
	if intents[0].Priority != 1 || intents[1].Priority != 2 {
		t.Fatalf("priorities = %d, %d", intents[0].Priority, intents[1].Priority)
	}
}

func TestSummarizeHistoryKeepsWindow(t *testing.T) {
	t.Parallel()

	history := make([]statex.Message, 0, 15)
	for i := 0; i < 15; i++ {
		history = append(history, statex.Message{Role: statex.RoleCustomer, Content: string(rune('a' + i))})
	}
	out := summarizeHistory(history, 10)
	if len(out) != 10 {
		t.Fatalf("len = %d, want 10", len(out))
	}
	if out[0]["content"] != "f" || out[9]["content"] != "o" {
		t.Fatalf("window = %v", out)
	}
}

func TestModuleActMapsToolCalls(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{
		toolCall(tool.ToolAddItem, `{"product_name":"burger","quantity":2}`),
	}}
	m, err := newLLMModule(context.Background(), contractx.CapabilitySales, fake, "sales prompt", 10)
	if err != nil {
		t.Fatalf("newLLMModule() error = %v", err)
	}
	if len(fake.boundTools) != len(tool.InfosFor(contractx.CapabilitySales)) {
		t.Fatalf("bound %d tools, want the sales tool set", len(fake.boundTools))
	}

	resp, err := m.Run(context.Background(), capabilityRequest())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(resp.ToolRequests) != 1 || resp.ToolRequests[0].Tool != tool.ToolAddItem {
		t.Fatalf("tool requests = %#v", resp.ToolRequests)
	}
	if resp.ToolRequests[0].Args["quantity"] != float64(2) {
		t.Fatalf("args = %#v", resp.ToolRequests[0].Args)
	}
}

func TestModuleActPlainText(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{assistantText("Which burger would you like?")}}
	m, err := newLLMModule(context.Background(), contractx.CapabilitySales, fake, "sales prompt", 10)
	if err != nil {
		t.Fatalf("newLLMModule() error = %v", err)
	}
	resp, err := m.Run(context.Background(), capabilityRequest())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.Content != "Which burger would you like?" || len(resp.ToolRequests) != 0 {
		t.Fatalf("resp = %#v", resp)
	}
}

func TestModuleActBadArguments(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{toolCall(tool.ToolAddItem, `{"product_name":`)}}
	m, err := newLLMModule(context.Background(), contractx.CapabilitySales, fake, "sales prompt", 10)
	if err != nil {
		t.Fatalf("newLLMModule() error = %v", err)
	}
	if _, err := m.Run(context.Background(), capabilityRequest()); !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("Run() error = %v, want ErrSchemaViolation", err)
	}
}

func TestModuleFinalizeParsesHandoff(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{
		assistantText(`{"message":"Two Classic Burgers added.","handoff_to":"checkout"}`),
	}}
	m, err := newLLMModule(context.Background(), contractx.CapabilitySales, fake, "sales prompt", 10)
	if err != nil {
		t.Fatalf("newLLMModule() error = %v", err)
	}

	req := capabilityRequest()
	req.ToolResults = []contractx.ToolResult{{Tool: tool.ToolAddItem, Success: true}}
	resp, err := m.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.Content != "Two Classic Burgers added." {
		t.Fatalf("content = %q", resp.Content)
	}
	if resp.HandoffTo != contractx.CapabilityCheckout {
		t.Fatalf("handoff = %q, want CHECKOUT", resp.HandoffTo)
	}
}

func TestModuleFinalizeRejectsEmptyMessage(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{assistantText(`{"message":"  ","handoff_to":"nowhere"}`)}}
	m, err := newLLMModule(context.Background(), contractx.CapabilitySales, fake, "sales prompt", 10)
	if err != nil {
		t.Fatalf("newLLMModule() error = %v", err)
	}
	req := capabilityRequest()
	req.ToolResults = []contractx.ToolResult{{Tool: tool.ToolAddItem, Success: true}}
	if _, err := m.Run(context.Background(), req); !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("Run() error = %v, want ErrSchemaViolation", err)
	}
}

func TestGreetingModuleSkipsActPass(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{assistantText(`{"message":"Hi there! What can I get you today?"}`)}}
	m, err := newLLMModule(context.Background(), contractx.CapabilityGreeting, fake, "greeting prompt", 10)
	if err != nil {
		t.Fatalf("newLLMModule() error = %v", err)
	}
	if fake.boundTools != nil {
		t.Fatalf("greeting must not bind tools")
	}
	resp, err := m.Run(context.Background(), capabilityRequest())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.Content == "" || len(resp.ToolRequests) != 0 {
		t.Fatalf("resp = %#v", resp)
	}
}

func TestModuleRequiresConversationID(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{}
	m, err := newLLMModule(context.Background(), contractx.CapabilityMenu, fake, "menu prompt", 10)
	if err != nil {
		t.Fatalf("newLLMModule() error = %v", err)
	}
	req := capabilityRequest()
	req.Context.ConversationID = ""
	if _, err := m.Run(context.Background(), req); err == nil {
		t.Fatalf("Run() without conversation id should fail")
	}
}

func TestLogisticsModuleActBuildsToolCalls(t *testing.T) {
	t.Parallel()

	req := capabilityRequest()
	req.Action = contractx.ActionSetDeliveryType
	req.Parameters = map[string]any{
		contractx.DataDeliveryType:  "delivery",
		contractx.DataAddress:       "12 Sukhumvit Road Bangkok",
		contractx.DataPaymentMethod: "qr",
	}

	resp, err := newLogisticsModule().Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []string{tool.ToolSetDeliveryType, tool.ToolValidateAddress, tool.ToolSetPaymentMethod}
	if len(resp.ToolRequests) != len(want) {
		t.Fatalf("tool requests = %#v", resp.ToolRequests)
	}
	for i, name := range want {
		if resp.ToolRequests[i].Tool != name {
			t.Fatalf("tool[%d] = %s, want %s", i, resp.ToolRequests[i].Tool, name)
		}
	}
}

func TestLogisticsModuleAsksWhenNothingExtracted(t *testing.T) {
	t.Parallel()

	req := capabilityRequest()
	req.Action = contractx.ActionSetDeliveryType
	resp, err := newLogisticsModule().Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.Content != "Would you like pickup or delivery?" {
		t.Fatalf("content = %q", resp.Content)
	}

	req.Context.Metadata = statex.Metadata{statex.MetaDeliveryType: statex.DeliveryPickup}
	req.Action = contractx.ActionSetPayment
	resp, _ = newLogisticsModule().Run(context.Background(), req)
	if resp.Content != "How would you like to pay: cash, card, transfer or QR?" {
		t.Fatalf("content = %q", resp.Content)
	}
}

func TestLogisticsModuleFinalize(t *testing.T) {
	t.Parallel()

	req := capabilityRequest()
	req.Context.Metadata = statex.Metadata{statex.MetaDeliveryType: statex.DeliveryPickup}
	req.ToolResults = []contractx.ToolResult{{
		Tool:    tool.ToolSetDeliveryType,
		Success: true,
		Data:    map[string]any{"delivery_type": statex.DeliveryPickup},
	}}

	resp, err := newLogisticsModule().Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := "Got it, you'll pick up your order. How would you like to pay: cash, card, transfer or QR?"
	if resp.Content != want {
		t.Fatalf("content = %q, want %q", resp.Content, want)
	}
}

func TestNewRegistryWithModels(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	roles := map[llmx.Role]int{}
	provider := func(ctx context.Context, role llmx.Role) (einomodel.ToolCallingChatModel, error) {
		mu.Lock()
		roles[role]++
		mu.Unlock()
		return &fakeToolCallingModel{}, nil
	}

	reg, err := NewRegistryWithModels(context.Background(), provider, 10)
	if err != nil {
		t.Fatalf("NewRegistryWithModels() error = %v", err)
	}
	if reg.Classifier() == nil {
		t.Fatalf("classifier is nil")
	}
	for _, c := range contractx.AllCapabilities {
		m, ok := reg.Module(c)
		if !ok || m.Capability() != c {
			t.Fatalf("module %s missing or mislabelled", c)
		}
	}
	if len(roles) != 6 {
		t.Fatalf("models built for roles %v, want classifier plus five capabilities", roles)
	}
	if _, ok := roles[llmx.RoleHumanizer]; ok {
		t.Fatalf("registry must not build the humanizer model")
	}
}

func TestNewRegistryWithModelsPropagatesErrors(t *testing.T) {
	t.Parallel()

	provider := func(ctx context.Context, role llmx.Role) (einomodel.ToolCallingChatModel, error) {
		return nil, errors.New("boom")
	}
	if _, err := NewRegistryWithModels(context.Background(), provider, 10); !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("error = %v, want ErrModelInvoke", err)
	}
}
