package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oddsview/oddsview/internal/odds"
)

// Errors
var (
	ErrUnknownType = errors.New("unknown message type")
)

// Type tags every message on the wire.
type Type string

// Client→server message types.
const (
	TypeSubscribe   Type = "subscribe"
	TypeUnsubscribe Type = "unsubscribe"
	TypePing        Type = "ping"
)

// Server→client message types.
const (
	TypeConnected Type = "connected"
	TypeSnapshot  Type = "snapshot"
	TypeUpdate    Type = "update"
	TypePong      Type = "pong"
	TypeStatus    Type = "status"
	TypeError     Type = "error"
)

// Message is a decoded server→client message.
type Message interface {
	MessageType() Type
}

// Connected acknowledges a freshly opened connection.
type Connected struct {
	ServerTime string `json:"server_time"`
}

func (Connected) MessageType() Type { return TypeConnected }

// Snapshot carries the full odds state for one (sport, game, market) tuple.
// It replaces all client-held data for the subscription.
type Snapshot struct {
	Sport           string     `json:"sport"`
	GameID          string     `json:"game_id"`
	HomeTeam        string     `json:"home_team"`
	AwayTeam        string     `json:"away_team"`
	GameDescription string     `json:"game_description"`
	Market          string     `json:"market"`
	Odds            odds.Books `json:"odds"`
}

func (Snapshot) MessageType() Type { return TypeSnapshot }

// Update carries the complete current outcome set for each sportsbook it
// mentions; sportsbooks it does not mention are unchanged.
type Update struct {
	Sport           string     `json:"sport"`
	GameID          string     `json:"game_id"`
	HomeTeam        string     `json:"home_team"`
	AwayTeam        string     `json:"away_team"`
	GameDescription string     `json:"game_description"`
	Market          string     `json:"market"`
	Odds            odds.Books `json:"odds"`
}

func (Update) MessageType() Type { return TypeUpdate }

// Pong answers a client ping.
type Pong struct {
	ServerTime string `json:"server_time"`
}

func (Pong) MessageType() Type { return TypePong }

// Status reports server-side feed health. UpstreamConnected describes the
// server's own link to the odds provider, not this client's socket.
type Status struct {
	UpstreamConnected bool `json:"upstream_connected"`
	GamesTracked      int  `json:"games_tracked"`
	SportsbooksActive int  `json:"sportsbooks_active"`
}

func (Status) MessageType() Type { return TypeStatus }

// ServerError is a non-fatal error reported by the server.
type ServerError struct {
	Message string `json:"message"`
}

func (ServerError) MessageType() Type { return TypeError }

// envelope is used for type extraction before the full parse.
type envelope struct {
	Type Type `json:"type"`
}

// Decode parses and validates a raw server→client payload.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case TypeConnected:
		return decodeAs[Connected](data)
	case TypeSnapshot:
		return decodeAs[Snapshot](data)
	case TypeUpdate:
		return decodeAs[Update](data)
	case TypePong:
		return decodeAs[Pong](data)
	case TypeStatus:
		return decodeAs[Status](data)
	case TypeError:
		return decodeAs[ServerError](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeAs[M Message](data []byte) (Message, error) {
	var msg M
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", msg.MessageType(), err)
	}
	return msg, nil
}

// subscribeWire is the client→server subscribe shape.
type subscribeWire struct {
	Type   Type   `json:"type"`
	Sport  string `json:"sport"`
	GameID string `json:"game_id"`
	Market string `json:"market"`
}

// controlWire covers the bodyless client→server messages.
type controlWire struct {
	Type Type `json:"type"`
}

// EncodeSubscribe builds a subscribe message for one tuple.
func EncodeSubscribe(sport, gameID, market string) ([]byte, error) {
	return json.Marshal(subscribeWire{
		Type:   TypeSubscribe,
		Sport:  sport,
		GameID: gameID,
		Market: market,
	})
}

// EncodeUnsubscribe builds an unsubscribe message.
func EncodeUnsubscribe() ([]byte, error) {
	return json.Marshal(controlWire{Type: TypeUnsubscribe})
}

// EncodePing builds a heartbeat ping.
func EncodePing() ([]byte, error) {
	return json.Marshal(controlWire{Type: TypePing})
}
