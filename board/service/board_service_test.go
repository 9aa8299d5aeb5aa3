package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/wricardo/collabboard/board/config"
	"github.com/wricardo/collabboard/board/service"
	"github.com/wricardo/collabboard/board/session"
	"github.com/wricardo/collabboard/transport/piston"
)

// MockCodeRunner implements service.CodeRunner for testing
type MockCodeRunner struct {
	ExecuteFunc func(ctx context.Context, req piston.Request) (json.RawMessage, error)
	calls       []piston.Request
}

func (m *MockCodeRunner) Execute(ctx context.Context, req piston.Request) (json.RawMessage, error) {
	m.calls = append(m.calls, req)
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, req)
	}
	return json.RawMessage(`{"run":{"stdout":""}}`), nil
}

func newTestService(t *testing.T) (service.BoardService, *session.Registry, *MockCodeRunner) {
	t.Helper()
	languages, err := config.NewManager("")
	if err != nil {
		t.Fatalf("Failed to create language catalog: %v", err)
	}
	registry := session.NewRegistry()
	runner := &MockCodeRunner{}
	return service.NewBoardService(registry, languages, runner), registry, runner
}

func TestBoardService_CreateSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	info, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if info.ID == "" {
		t.Error("Expected generated session ID")
	}

	if _, err := svc.CreateSession(ctx, info.ID); !errors.Is(err, session.ErrSessionAlreadyExists) {
		t.Errorf("Expected ErrSessionAlreadyExists, got %v", err)
	}
	if _, err := svc.CreateSession(ctx, "bad id"); !errors.Is(err, session.ErrInvalidSessionID) {
		t.Errorf("Expected ErrInvalidSessionID, got %v", err)
	}
}

func TestBoardService_GetSessionState(t *testing.T) {
	svc, registry, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GetSessionState(ctx, "missing"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	sess, _ := registry.ResolveOrCreate("room")
	if _, err := sess.Publish(nil, json.RawMessage(`{"codeText":"print(1)","codeLanguage":"python"}`)); err != nil {
		t.Fatal(err)
	}

	st, err := svc.GetSessionState(ctx, "room")
	if err != nil {
		t.Fatalf("GetSessionState failed: %v", err)
	}
	if st.CodeText != "print(1)" || st.CodeLanguage != "python" {
		t.Errorf("Unexpected state: %+v", st)
	}
}

func TestBoardService_NewTextboxID(t *testing.T) {
	svc, registry, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.NewTextboxID(ctx, "missing"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	registry.ResolveOrCreate("room")
	first, err := svc.NewTextboxID(ctx, "room")
	if err != nil {
		t.Fatalf("NewTextboxID failed: %v", err)
	}
	second, _ := svc.NewTextboxID(ctx, "room")
	if first == "" || first == second {
		t.Errorf("Expected distinct ids, got %q and %q", first, second)
	}
}

func TestBoardService_ListSessions(t *testing.T) {
	svc, registry, _ := newTestService(t)
	ctx := context.Background()

	registry.ResolveOrCreate("b")
	registry.ResolveOrCreate("a")

	list, err := svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "a" {
		t.Errorf("Expected sessions a and b, got %+v", list)
	}
	if list[0].Guests == nil {
		t.Error("Expected non-nil guest list")
	}
}

func TestBoardService_ExecuteCode(t *testing.T) {
	svc, _, runner := newTestService(t)
	ctx := context.Background()

	t.Run("fills version from catalog", func(t *testing.T) {
		if _, err := svc.ExecuteCode(ctx, piston.Request{Language: "python"}); err != nil {
			t.Fatalf("ExecuteCode failed: %v", err)
		}
		if got := runner.calls[len(runner.calls)-1].Version; got != "3.10.0" {
			t.Errorf("Expected version 3.10.0, got %q", got)
		}
	})

	t.Run("keeps explicit version", func(t *testing.T) {
		svc.ExecuteCode(ctx, piston.Request{Language: "python", Version: "3.12.0"})
		if got := runner.calls[len(runner.calls)-1].Version; got != "3.12.0" {
			t.Errorf("Expected version 3.12.0, got %q", got)
		}
	})

	t.Run("unknown language is forwarded", func(t *testing.T) {
		svc.ExecuteCode(ctx, piston.Request{Language: "brainfuck"})
		last := runner.calls[len(runner.calls)-1]
		if last.Language != "brainfuck" || last.Version != "" {
			t.Errorf("Unexpected forwarded request: %+v", last)
		}
	})

	t.Run("runner error", func(t *testing.T) {
		runner.ExecuteFunc = func(ctx context.Context, req piston.Request) (json.RawMessage, error) {
			return nil, &piston.UpstreamError{StatusCode: 502}
		}
		defer func() { runner.ExecuteFunc = nil }()

		_, err := svc.ExecuteCode(ctx, piston.Request{Language: "go"})
		var upstream *piston.UpstreamError
		if !errors.As(err, &upstream) {
			t.Errorf("Expected UpstreamError, got %v", err)
		}
	})
}
