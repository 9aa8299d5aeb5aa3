package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wricardo/collabboard/board/config"
	"github.com/wricardo/collabboard/board/session"
	"github.com/wricardo/collabboard/board/state"
	"github.com/wricardo/collabboard/transport/piston"
)

// BoardService defines the session operations available outside the websocket channel
type BoardService interface {
	CreateSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	GetSessionState(ctx context.Context, sessionID string) (*state.SessionState, error)
	NewTextboxID(ctx context.Context, sessionID string) (string, error)

	ListLanguages(ctx context.Context) ([]config.Language, error)
	ExecuteCode(ctx context.Context, req piston.Request) (json.RawMessage, error)
}

// SessionRegistry is the session storage the service reads from
type SessionRegistry interface {
	Create(id string) (*session.Session, error)
	Get(id string) (*session.Session, error)
	List() []*session.Session
}

// LanguageCatalog resolves editor languages to runner versions
type LanguageCatalog interface {
	List() []config.Language
	Lookup(name string) (config.Language, error)
}

// CodeRunner executes code on behalf of the editor
type CodeRunner interface {
	Execute(ctx context.Context, req piston.Request) (json.RawMessage, error)
}

// SessionInfo describes a session for REST and MCP clients
type SessionInfo struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	Connections  int       `json:"connections"`
	Guests       []string  `json:"guests"`
	StrokeCount  int       `json:"stroke_count"`
	TextboxCount int       `json:"textbox_count"`
}
