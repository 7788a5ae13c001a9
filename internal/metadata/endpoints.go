package metadata

import (
	"context"
	"fmt"
	"net/url"
)

// GetSports fetches the available sports and sportsbooks.
func (c *Client) GetSports(ctx context.Context) (*SportsResponse, error) {
	var resp SportsResponse
	if err := c.get(ctx, "/sports", nil, &resp); err != nil {
		return nil, fmt.Errorf("get sports: %w", err)
	}
	return &resp, nil
}

// GetGames fetches the games currently tracked for a sport.
func (c *Client) GetGames(ctx context.Context, sport string) ([]Game, error) {
	var resp GamesResponse
	if err := c.get(ctx, "/games/"+url.PathEscape(sport), nil, &resp); err != nil {
		return nil, fmt.Errorf("get games for %s: %w", sport, err)
	}
	return resp.Games, nil
}

// GetMarkets fetches the market types for a sport. When gameID is non-empty
// the backend narrows the list to markets with live odds for that game.
func (c *Client) GetMarkets(ctx context.Context, sport, gameID string) ([]string, error) {
	var query url.Values
	if gameID != "" {
		query = url.Values{"game_id": {gameID}}
	}

	var resp MarketsResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(sport), query, &resp); err != nil {
		return nil, fmt.Errorf("get markets for %s: %w", sport, err)
	}
	return resp.Markets, nil
}

// GetStatus fetches the backend health summary.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	var resp Status
	if err := c.get(ctx, "/status", nil, &resp); err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	return &resp, nil
}
