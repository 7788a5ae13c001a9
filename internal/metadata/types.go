package metadata

// SportsResponse is the payload of GET /sports.
type SportsResponse struct {
	Sports      []string `json:"sports"`
	Sportsbooks []string `json:"sportsbooks"`
}

// Game summarizes one tracked game.
type Game struct {
	GameID          string `json:"game_id"`
	HomeTeam        string `json:"home_team"`
	AwayTeam        string `json:"away_team"`
	Sport           string `json:"sport"`
	GameDescription string `json:"game_description"`
	SportsbookCount int    `json:"sportsbook_count"`
	LastUpdate      string `json:"last_update"`
}

// GamesResponse is the payload of GET /games/{sport}.
type GamesResponse struct {
	Sport string `json:"sport"`
	Games []Game `json:"games"`
}

// MarketsResponse is the payload of GET /markets/{sport}.
type MarketsResponse struct {
	Sport   string   `json:"sport"`
	GameID  string   `json:"game_id,omitempty"`
	Markets []string `json:"markets"`
}

// Status is the payload of GET /status.
type Status struct {
	UpstreamConnected bool     `json:"upstream_connected"`
	GamesTracked      int      `json:"games_tracked"`
	SportsbooksActive int      `json:"sportsbooks_active"`
	Sports            []string `json:"sports"`
}
