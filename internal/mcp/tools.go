package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ispacehq/ivault/pkg/catalog"
)

// ItemInfo is item metadata exposed to agents. It never carries payload
// fields.
type ItemInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// ItemListInput is the input for the item_list tool.
type ItemListInput struct {
	// Type filters by item type (password, card, document). Empty lists
	// every exposed type.
	Type string `json:"type,omitempty"`
}

// ItemListOutput is the output for the item_list tool.
type ItemListOutput struct {
	Items []ItemInfo `json:"items"`
}

// ItemSearchInput is the input for the item_search tool.
type ItemSearchInput struct {
	Type  string `json:"type"`
	Query string `json:"query"`
}

// ItemSearchOutput is the output for the item_search tool.
type ItemSearchOutput struct {
	Items []ItemInfo `json:"items"`
}

// ItemExistsInput is the input for the item_exists tool.
type ItemExistsInput struct {
	Name string `json:"name"`
}

// ItemExistsOutput is the output for the item_exists tool.
type ItemExistsOutput struct {
	Exists bool   `json:"exists"`
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Type   string `json:"type,omitempty"`
}

func (s *Server) handleItemList(_ context.Context, _ *mcp.CallToolRequest, input ItemListInput) (*mcp.CallToolResult, ItemListOutput, error) {
	var items []catalog.StoredItem
	if input.Type != "" {
		t := catalog.ItemType(input.Type)
		if !t.Valid() {
			return nil, ItemListOutput{}, fmt.Errorf("unknown item type: %q", input.Type)
		}
		items = s.vault.ListByType(t)
	} else {
		items = s.vault.Items()
	}

	return nil, ItemListOutput{Items: s.exposedInfos(items)}, nil
}

func (s *Server) handleItemSearch(_ context.Context, _ *mcp.CallToolRequest, input ItemSearchInput) (*mcp.CallToolResult, ItemSearchOutput, error) {
	t := catalog.ItemType(input.Type)
	if !t.Valid() {
		return nil, ItemSearchOutput{}, fmt.Errorf("unknown item type: %q", input.Type)
	}

	items := s.vault.Search(t, input.Query)
	return nil, ItemSearchOutput{Items: s.exposedInfos(items)}, nil
}

func (s *Server) handleItemExists(_ context.Context, _ *mcp.CallToolRequest, input ItemExistsInput) (*mcp.CallToolResult, ItemExistsOutput, error) {
	if input.Name == "" {
		return nil, ItemExistsOutput{}, errors.New("name is required")
	}

	for _, item := range s.vault.Items() {
		if item.Name == input.Name && s.policy.IsTypeExposed(item.Type) {
			return nil, ItemExistsOutput{
				Exists: true,
				ID:     item.ID.String(),
				Name:   item.Name,
				Type:   string(item.Type),
			}, nil
		}
	}
	return nil, ItemExistsOutput{Exists: false}, nil
}

// exposedInfos converts catalog records to metadata, dropping types the
// policy keeps hidden.
func (s *Server) exposedInfos(items []catalog.StoredItem) []ItemInfo {
	infos := make([]ItemInfo, 0, len(items))
	for _, item := range items {
		if !s.policy.IsTypeExposed(item.Type) {
			continue
		}
		infos = append(infos, ItemInfo{
			ID:   item.ID.String(),
			Name: item.Name,
			Type: string(item.Type),
		})
	}
	return infos
}
