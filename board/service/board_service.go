package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wricardo/collabboard/board/config"
	"github.com/wricardo/collabboard/board/session"
	"github.com/wricardo/collabboard/board/state"
	"github.com/wricardo/collabboard/transport/piston"
)

// boardServiceImpl implements the BoardService interface
type boardServiceImpl struct {
	sessions  SessionRegistry
	languages LanguageCatalog
	runner    CodeRunner
}

// NewBoardService creates a new board service instance
func NewBoardService(sessions SessionRegistry, languages LanguageCatalog, runner CodeRunner) BoardService {
	return &boardServiceImpl{
		sessions:  sessions,
		languages: languages,
		runner:    runner,
	}
}

// CreateSession registers an empty session. An empty sessionID gets a generated one.
func (s *boardServiceImpl) CreateSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.sessions.Create(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return toSessionInfo(sess.Summary()), nil
}

func (s *boardServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return toSessionInfo(sess.Summary()), nil
}

func (s *boardServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, toSessionInfo(sess.Summary()))
	}
	return result, nil
}

// GetSessionState returns a snapshot of an existing session's board
func (s *boardServiceImpl) GetSessionState(ctx context.Context, sessionID string) (*state.SessionState, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Snapshot(), nil
}

// NewTextboxID mints an id for a text box about to be added to an existing session
func (s *boardServiceImpl) NewTextboxID(ctx context.Context, sessionID string) (string, error) {
	if _, err := s.sessions.Get(sessionID); err != nil {
		return "", err
	}
	return state.NewTextboxID(), nil
}

func (s *boardServiceImpl) ListLanguages(ctx context.Context) ([]config.Language, error) {
	return s.languages.List(), nil
}

// ExecuteCode forwards req to the code runner, filling in the catalog
// version when the caller named only a language.
func (s *boardServiceImpl) ExecuteCode(ctx context.Context, req piston.Request) (json.RawMessage, error) {
	if req.Version == "" && req.Language != "" {
		lang, err := s.languages.Lookup(req.Language)
		switch {
		case err == nil:
			req.Version = lang.Version
		case !errors.Is(err, config.ErrLanguageNotFound):
			return nil, err
		}
	}
	return s.runner.Execute(ctx, req)
}

func toSessionInfo(sum session.Summary) *SessionInfo {
	return &SessionInfo{
		ID:           sum.ID,
		CreatedAt:    sum.CreatedAt,
		LastActiveAt: sum.LastActiveAt,
		Connections:  sum.Connections,
		Guests:       sum.Guests,
		StrokeCount:  sum.Strokes,
		TextboxCount: sum.Textboxes,
	}
}
