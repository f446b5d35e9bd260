package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	listTypeDomain = "DOMAIN"
	actionBlock    = "block"
	filterDNS      = "dns"
)

// List is a gateway domain list.
type List struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	Count       int    `json:"count,omitempty"`
}

type listItem struct {
	Value string `json:"value"`
}

type createListRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
	Items       []listItem `json:"items"`
}

// Rule is a gateway policy rule.
type Rule struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Action      string   `json:"action"`
	Enabled     bool     `json:"enabled"`
	Filters     []string `json:"filters,omitempty"`
	Traffic     string   `json:"traffic,omitempty"`
}

type createRuleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Action      string   `json:"action"`
	Enabled     bool     `json:"enabled"`
	Filters     []string `json:"filters"`
	Traffic     string   `json:"traffic"`
}

// Lists fetches all gateway lists for the account.
func (c *Client) Lists(ctx context.Context) ([]List, error) {
	env, err := c.Request(ctx, http.MethodGet, "/lists", nil, nil)
	if err != nil {
		return nil, err
	}
	var lists []List
	if len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, &lists); err != nil {
			return nil, fmt.Errorf("decode lists: %w", err)
		}
	}
	return lists, nil
}

// CreateList creates a DOMAIN-type gateway list with the given entries.
func (c *Client) CreateList(ctx context.Context, name, description string, entries []string) (*List, error) {
	items := make([]listItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, listItem{Value: e})
	}
	payload := createListRequest{
		Name:        name,
		Description: description,
		Type:        listTypeDomain,
		Items:       items,
	}
	env, err := c.Request(ctx, http.MethodPost, "/lists", payload, nil)
	if err != nil {
		return nil, err
	}
	var list List
	if err := json.Unmarshal(env.Result, &list); err != nil {
		return nil, fmt.Errorf("decode created list: %w", err)
	}
	return &list, nil
}

// DeleteList removes a gateway list by ID.
func (c *Client) DeleteList(ctx context.Context, id string) error {
	_, err := c.Request(ctx, http.MethodDelete, "/lists/"+id, nil, nil)
	return err
}

// Rules fetches all gateway policy rules for the account.
func (c *Client) Rules(ctx context.Context) ([]Rule, error) {
	env, err := c.Request(ctx, http.MethodGet, "/rules", nil, nil)
	if err != nil {
		return nil, err
	}
	var rules []Rule
	if len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, &rules); err != nil {
			return nil, fmt.Errorf("decode rules: %w", err)
		}
	}
	return rules, nil
}

// CreateRule creates an enabled DNS block rule with the given traffic
// expression.
func (c *Client) CreateRule(ctx context.Context, name, description, traffic string) (*Rule, error) {
	payload := createRuleRequest{
		Name:        name,
		Description: description,
		Action:      actionBlock,
		Enabled:     true,
		Filters:     []string{filterDNS},
		Traffic:     traffic,
	}
	env, err := c.Request(ctx, http.MethodPost, "/rules", payload, nil)
	if err != nil {
		return nil, err
	}
	var rule Rule
	if err := json.Unmarshal(env.Result, &rule); err != nil {
		return nil, fmt.Errorf("decode created rule: %w", err)
	}
	return &rule, nil
}

// DeleteRule removes a gateway policy rule by ID.
func (c *Client) DeleteRule(ctx context.Context, id string) error {
	_, err := c.Request(ctx, http.MethodDelete, "/rules/"+id, nil, nil)
	return err
}

// BlockExpression builds a rule traffic expression that matches DNS queries
// for any domain contained in the given lists. List IDs are referenced with
// dashes stripped, as the wirefilter syntax requires.
func BlockExpression(listIDs []string) string {
	parts := make([]string, 0, len(listIDs))
	for _, id := range listIDs {
		parts = append(parts, fmt.Sprintf("any(dns.domains[*] in $%s)", strings.ReplaceAll(id, "-", "")))
	}
	return strings.Join(parts, " or ")
}
