package state

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// ConversationState is the single active stage of a conversation.
// Only the state machine decides transitions; stores persist whatever it decided.
type ConversationState string

const (
	StateGreeting          ConversationState = "GREETING"
	StateDiscovery         ConversationState = "DISCOVERY"
	StateBrowsingMenu      ConversationState = "BROWSING_MENU"
	StateSelectingProducts ConversationState = "SELECTING_PRODUCTS"
	StateBuildingOrder     ConversationState = "BUILDING_ORDER"
	StateReadyToCheckout   ConversationState = "READY_TO_CHECKOUT"
	StateCollectingAddress ConversationState = "COLLECTING_ADDRESS"
	StateCollectingPayment ConversationState = "COLLECTING_PAYMENT"
	StateConfirmingOrder   ConversationState = "CONFIRMING_ORDER"
	StateOrderPlaced       ConversationState = "ORDER_PLACED"
	StateAbandoned         ConversationState = "ABANDONED"
	StateAskingSupport     ConversationState = "ASKING_SUPPORT"
)

// AllStates lists every state in lifecycle order.
var AllStates = []ConversationState{
	StateGreeting,
	StateDiscovery,
	StateBrowsingMenu,
	StateSelectingProducts,
	StateBuildingOrder,
	StateReadyToCheckout,
	StateCollectingAddress,
	StateCollectingPayment,
	StateConfirmingOrder,
	StateOrderPlaced,
	StateAbandoned,
	StateAskingSupport,
}

func (s ConversationState) Valid() bool {
	for _, st := range AllStates {
		if st == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state is absorbing.
func (s ConversationState) IsTerminal() bool {
	return s == StateOrderPlaced || s == StateAbandoned
}

/* ------------------------------- Metadata -------------------------------- */

const (
	MetaGreeted          = "greeted"
	MetaCustomerName     = "customer_name"
	MetaDeliveryType     = "delivery_type"
	MetaDeliveryAddress  = "delivery_address"
	MetaAddressValidated = "address_validated"
	MetaPaymentMethod    = "payment_method"
	MetaUpsellAttempts   = "upsell_attempts"
	MetaLastOrderID      = "last_order_id"
	MetaLastCapability   = "last_capability"
	MetaAbandoned        = "abandoned"
	MetaHandoffRequested = "handoff_requested"
)

// MaxUpsellAttempts caps add-on offers per conversation.
const MaxUpsellAttempts = 2

const (
	DeliveryPickup   = "pickup"
	DeliveryDelivery = "delivery"
)

// Metadata is the opaque per-conversation key/value bag.
// Values survive a JSON round-trip, so numeric readers accept float64 too.
type Metadata map[string]any

func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (m Metadata) Bool(key string) bool {
	if m == nil {
		return false
	}
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

func (m Metadata) Int(key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	default:
		return 0
	}
}

func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge returns a copy of m with patch applied. A nil patch value deletes the key.
func (m Metadata) Merge(patch Metadata) Metadata {
	out := m.Clone()
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// Diff returns the keys of m that are new or changed relative to base,
// plus nil entries for keys that were removed.
func (m Metadata) Diff(base Metadata) Metadata {
	patch := Metadata{}
	for k, v := range m {
		if old, ok := base[k]; !ok || !reflect.DeepEqual(old, v) {
			patch[k] = v
		}
	}
	for k := range base {
		if _, ok := m[k]; !ok {
			patch[k] = nil
		}
	}
	return patch
}

// DeliveryResolved reports whether fulfilment is settled: pickup, or delivery to a validated address.
func (m Metadata) DeliveryResolved() bool {
	switch m.String(MetaDeliveryType) {
	case DeliveryPickup:
		return true
	case DeliveryDelivery:
		return m.Bool(MetaAddressValidated)
	default:
		return false
	}
}

/* ----------------------------- Conversation ------------------------------ */

const (
	RoleCustomer  = "customer"
	RoleAssistant = "assistant"
)

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is the persisted source of truth for one customer thread.
type Conversation struct {
	ID        string            `json:"id"`
	State     ConversationState `json:"state"`
	Metadata  Metadata          `json:"metadata,omitempty"`
	Cart      Cart              `json:"cart,omitempty"`
	Version   int64             `json:"version"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type Order struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Items          Cart      `json:"items"`
	Total          float64   `json:"total"`
	DeliveryType   string    `json:"delivery_type"`
	Address        string    `json:"address,omitempty"`
	PaymentMethod  string    `json:"payment_method"`
	CreatedAt      time.Time `json:"created_at"`
}

var (
	ErrInvalidConversation = errors.New("conversation id is empty")
	ErrInvalidState        = errors.New("invalid conversation state")
	ErrTerminalState       = errors.New("conversation is in a terminal state")
)

func NewConversation(id string, now time.Time) *Conversation {
	return &Conversation{
		ID:        id,
		State:     StateGreeting,
		Metadata:  Metadata{},
		UpdatedAt: now.UTC(),
	}
}

func (c *Conversation) Touch(now time.Time) {
	c.UpdatedAt = now.UTC()
}

func (c *Conversation) EnsureMetadata() {
	if c.Metadata == nil {
		c.Metadata = Metadata{}
	}
}

func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Metadata = c.Metadata.Clone()
	out.Cart = append(Cart(nil), c.Cart...)
	return &out
}

// Totals summarises the cart.
func (c *Conversation) Totals() CartTotals {
	return CartTotals{Total: c.Cart.Total(), Count: c.Cart.Count()}
}

func (c *Conversation) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrInvalidConversation
	}
	if !c.State.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, c.State)
	}
	for _, item := range c.Cart {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// applyState advances the state and merges the metadata patch.
// An empty newState keeps the current one. Terminal states are frozen.
func (c *Conversation) applyState(newState ConversationState, patch Metadata, now time.Time) error {
	if newState == "" {
		newState = c.State
	}
	if !newState.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, newState)
	}
	if c.State.IsTerminal() && newState != c.State {
		return fmt.Errorf("%w: %s", ErrTerminalState, c.State)
	}
	c.State = newState
	c.Metadata = c.Metadata.Merge(patch)
	c.Touch(now)
	return nil
}
