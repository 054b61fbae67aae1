package tool

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
)

type productView struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Available   bool    `json:"available"`
	Description string  `json:"description,omitempty"`
}

func getMenu(_ context.Context, env *Env, args map[string]any) contractx.ToolResult {
	category, _ := stringArg(args, "category", false)
	products := env.Catalog.ByCategory(category)
	if len(products) == 0 {
		// Unknown category, fall back to the full menu.
		category = ""
		products = env.Catalog.ByCategory("")
	}

	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, productView{
			Name:        p.Name,
			Category:    p.Category,
			Price:       p.Price,
			Available:   p.InStock(),
			Description: p.Description,
		})
	}
	return contractx.ToolResult{
		Success: true,
		Message: fmt.Sprintf("%d product(s)", len(views)),
		Data: map[string]any{
			"category":   category,
			"categories": env.Catalog.Categories(),
			"currency":   env.Catalog.Currency,
			"products":   views,
		},
	}
}

func sendMenuLink(_ context.Context, env *Env, _ map[string]any) contractx.ToolResult {
	if env.Catalog.MenuURL == "" {
		return contractx.FailedResult(ToolSendMenuLink, contractx.CodeInvalidArgument, "no menu link is configured")
	}
	return contractx.ToolResult{
		Success: true,
		Message: "menu link ready",
		Data:    map[string]any{"menu_url": env.Catalog.MenuURL},
	}
}

func checkAvailability(_ context.Context, env *Env, args map[string]any) contractx.ToolResult {
	name, err := stringArg(args, "product_name", true)
	if err != nil {
		return invalidArg(ToolCheckAvailability, err)
	}
	p, err := env.Catalog.Lookup(name)
	if err != nil {
		return contractx.FailedResult(ToolCheckAvailability, contractx.CodeProductNotFound,
			fmt.Sprintf("%q is not on the menu", name))
	}
	msg := fmt.Sprintf("%s is available", p.Name)
	if !p.InStock() {
		msg = fmt.Sprintf("%s is sold out today", p.Name)
	}
	return contractx.ToolResult{
		Success: true,
		Message: msg,
		Data: productView{
			Name:        p.Name,
			Category:    p.Category,
			Price:       p.Price,
			Available:   p.InStock(),
			Description: p.Description,
		},
	}
}
