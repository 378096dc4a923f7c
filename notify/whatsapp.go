// Package notify sends customer-facing WhatsApp template messages
// through the Meta Graph API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mrsandwich/backoffice/apperr"
)

const (
	defaultBaseURL = "https://graph.facebook.com/v18.0"
	brandName      = "Mr. Sandwich"
)

// Template names registered with the WhatsApp business account. Each
// template fixes the count and order of its body parameters, so the
// Send methods below must not reorder them.
const (
	TemplatePromoCode     = "promocode_update"
	TemplateNewMenu       = "new_menu_alert"
	TemplateExclusive     = "exclusive_offer"
	TemplateRewardsUpdate = "rewards_summary"
	TemplateNewOrder      = "new_order"
	TemplateOrderUpdate   = "order_update"
)

type Client struct {
	http          *http.Client
	baseURL       string
	accessToken   string
	phoneNumberID string
}

type Option func(*Client)

// WithBaseURL overrides the Graph API endpoint. Tests point this at a
// local server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(accessToken, phoneNumberID string, opts ...Option) *Client {
	c := &Client{
		http:          &http.Client{Timeout: 15 * time.Second},
		baseURL:       defaultBaseURL,
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type templateMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Template         template `json:"template"`
}

type template struct {
	Name       string      `json:"name"`
	Language   language    `json:"language"`
	Components []component `json:"components,omitempty"`
}

type language struct {
	Code string `json:"code"`
}

type component struct {
	Type       string      `json:"type"`
	Parameters []parameter `json:"parameters,omitempty"`
}

type parameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textParams(values ...string) []component {
	if len(values) == 0 {
		return nil
	}
	params := make([]parameter, 0, len(values))
	for _, v := range values {
		params = append(params, parameter{Type: "text", Text: v})
	}
	return []component{{Type: "body", Parameters: params}}
}

// SendPromoCode announces a coupon code to one customer.
func (c *Client) SendPromoCode(ctx context.Context, phoneNumber, name, code string) error {
	if code == "" {
		return apperr.InvalidArgumentf("promo code is required")
	}
	return c.sendTemplate(ctx, phoneNumber, TemplatePromoCode, textParams(name, code, brandName))
}

// SendNewMenuAlert announces a menu addition.
func (c *Client) SendNewMenuAlert(ctx context.Context, phoneNumber, name, itemName string) error {
	if itemName == "" {
		return apperr.InvalidArgumentf("menu item is required")
	}
	return c.sendTemplate(ctx, phoneNumber, TemplateNewMenu, textParams(name, itemName, brandName))
}

// SendExclusiveOffer sends an offer tied to an occasion.
func (c *Client) SendExclusiveOffer(ctx context.Context, phoneNumber, name, occasion string) error {
	if occasion == "" {
		return apperr.InvalidArgumentf("occasion is required")
	}
	return c.sendTemplate(ctx, phoneNumber, TemplateExclusive, textParams(name, occasion, brandName))
}

// SendRewardsSummary tells a customer their point balance for a period.
func (c *Client) SendRewardsSummary(ctx context.Context, phoneNumber, name string, points int64, period string) error {
	if period == "" {
		return apperr.InvalidArgumentf("reward period is required")
	}
	return c.sendTemplate(ctx, phoneNumber, TemplateRewardsUpdate, textParams(name, fmt.Sprintf("%d", points), period))
}

// SendNewOrder notifies staff that an order was placed.
func (c *Client) SendNewOrder(ctx context.Context, phoneNumber, tableID, orderTotal, items string) error {
	if tableID == "" || orderTotal == "" || items == "" {
		return apperr.InvalidArgumentf("order notification needs table, total and items")
	}
	return c.sendTemplate(ctx, phoneNumber, TemplateNewOrder, textParams(tableID, orderTotal, items))
}

// SendOrderUpdate notifies about a change to an existing order.
func (c *Client) SendOrderUpdate(ctx context.Context, phoneNumber, tableID, orderTotal, items string) error {
	if tableID == "" || orderTotal == "" || items == "" {
		return apperr.InvalidArgumentf("order notification needs table, total and items")
	}
	return c.sendTemplate(ctx, phoneNumber, TemplateOrderUpdate, textParams(tableID, orderTotal, items))
}

func (c *Client) sendTemplate(ctx context.Context, phoneNumber, templateName string, components []component) error {
	if c.accessToken == "" || c.phoneNumberID == "" {
		return apperr.InvalidArgumentf("whatsapp credentials are not configured")
	}
	if phoneNumber == "" {
		return apperr.InvalidArgumentf("phone number is required")
	}

	msg := templateMessage{
		MessagingProduct: "whatsapp",
		To:               phoneNumber,
		Type:             "template",
		Template: template{
			Name:       templateName,
			Language:   language{Code: "en"},
			Components: components,
		},
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending %s: %w", templateName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("whatsapp api returned %d for %s: %s", resp.StatusCode, templateName, detail)
	}
	return nil
}
