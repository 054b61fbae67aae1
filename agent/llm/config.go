package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	openrouterx "github.com/tanpawarit/chative-commerce/pkg/openrouter"
)

// Role names one LLM-backed component.
type Role string

const (
	RoleClassifier Role = "classifier"
	RoleSales      Role = "sales"
	RoleCheckout   Role = "checkout"
	RoleMenu       Role = "menu"
	RoleSupport    Role = "support"
	RoleGreeting   Role = "greeting"
	RoleHumanizer  Role = "humanizer"
)

// RoleFor maps a capability to its model role. LOGISTICS has none.
func RoleFor(c contractx.Capability) (Role, bool) {
	switch c {
	case contractx.CapabilitySales:
		return RoleSales, true
	case contractx.CapabilityCheckout:
		return RoleCheckout, true
	case contractx.CapabilityMenu:
		return RoleMenu, true
	case contractx.CapabilitySupport:
		return RoleSupport, true
	case contractx.CapabilityGreeting:
		return RoleGreeting, true
	}
	return "", false
}

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	ClassifierModel string `envconfig:"CLASSIFIER_MODEL" split_words:"true"`
	SalesModel      string `envconfig:"SALES_MODEL" split_words:"true"`
	CheckoutModel   string `envconfig:"CHECKOUT_MODEL" split_words:"true"`
	MenuModel       string `envconfig:"MENU_MODEL" split_words:"true"`
	SupportModel    string `envconfig:"SUPPORT_MODEL" split_words:"true"`
	GreetingModel   string `envconfig:"GREETING_MODEL" split_words:"true"`
	HumanizerModel  string `envconfig:"HUMANIZER_MODEL" split_words:"true"`

	// -1 inherits Temperature.
	ClassifierTemperature float32 `envconfig:"CLASSIFIER_TEMPERATURE" split_words:"true" default:"0"`
	SalesTemperature      float32 `envconfig:"SALES_TEMPERATURE" split_words:"true" default:"-1"`
	CheckoutTemperature   float32 `envconfig:"CHECKOUT_TEMPERATURE" split_words:"true" default:"-1"`
	MenuTemperature       float32 `envconfig:"MENU_TEMPERATURE" split_words:"true" default:"-1"`
	SupportTemperature    float32 `envconfig:"SUPPORT_TEMPERATURE" split_words:"true" default:"-1"`
	GreetingTemperature   float32 `envconfig:"GREETING_TEMPERATURE" split_words:"true" default:"-1"`
	HumanizerTemperature  float32 `envconfig:"HUMANIZER_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	if c.MaxCompletionToken <= 0 {
		return fmt.Errorf("%w: max completion token must be positive", contractx.ErrValidation)
	}
	return nil
}

func (c Config) override(role Role) (string, float32) {
	switch role {
	case RoleClassifier:
		return c.ClassifierModel, c.ClassifierTemperature
	case RoleSales:
		return c.SalesModel, c.SalesTemperature
	case RoleCheckout:
		return c.CheckoutModel, c.CheckoutTemperature
	case RoleMenu:
		return c.MenuModel, c.MenuTemperature
	case RoleSupport:
		return c.SupportModel, c.SupportTemperature
	case RoleGreeting:
		return c.GreetingModel, c.GreetingTemperature
	case RoleHumanizer:
		return c.HumanizerModel, c.HumanizerTemperature
	}
	return "", -1
}

func (c Config) OpenRouterFor(role Role) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	m, t := c.override(role)
	if v := strings.TrimSpace(m); v != "" {
		modelName = v
	}
	if t >= 0 {
		temp = t
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
