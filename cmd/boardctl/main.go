// Command boardctl inspects and drives a running board server from the
// terminal: list sessions, dump or export a board, follow live updates,
// push an update, validate a saved board, and find servers on the LAN.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/collabboard/board/protocol"
	"github.com/wricardo/collabboard/board/service"
	"github.com/wricardo/collabboard/board/state"
	"github.com/wricardo/collabboard/transport/discovery"
	"github.com/wricardo/collabboard/transport/syncclient"
)

const defaultServer = "http://localhost:8080"

var errMissingSession = errors.New("session id is required")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "boardctl",
		Usage: "inspect and drive a collaborative board server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   defaultServer,
				Usage:   "board server base URL",
				Sources: cli.EnvVars("BOARD_SERVER"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "sessions",
				Usage:  "list live sessions, most recently active first",
				Action: listSessions,
			},
			{
				Name:      "state",
				Usage:     "print the current board of a session as JSON",
				ArgsUsage: "<session_id>",
				Action:    printState,
			},
			{
				Name:      "export",
				Usage:     "download a session board as PDF",
				ArgsUsage: "<session_id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file (default <session_id>.pdf)"},
				},
				Action: exportPDF,
			},
			{
				Name:      "watch",
				Usage:     "join a session and print every update as it arrives",
				ArgsUsage: "<session_id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Value: "boardctl", Usage: "guest name to join with"},
					&cli.IntFlag{Name: "retries", Value: syncclient.DefaultMaxRetries, Usage: "consecutive reconnect attempts before giving up (negative retries forever)"},
				},
				Action: watchSession,
			},
			{
				Name:      "push",
				Usage:     "send one update payload to a session",
				ArgsUsage: "<session_id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Value: "-", Usage: "file holding the update payload, - for stdin"},
					&cli.StringFlag{Name: "name", Value: "boardctl", Usage: "guest name to join with"},
				},
				Action: pushUpdate,
			},
			{
				Name:      "validate",
				Usage:     "check a saved board for consistency",
				ArgsUsage: "<file>",
				Action:    validateBoard,
			},
			{
				Name:  "discover",
				Usage: "find board servers announced on the local network",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "timeout", Value: discovery.DefaultBrowseTimeout, Usage: "how long to listen for answers"},
				},
				Action: discoverServers,
			},
		},
	}
}

func out(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func sessionArg(cmd *cli.Command) (string, error) {
	id := cmd.Args().First()
	if id == "" {
		return "", errMissingSession
	}
	return id, nil
}

func serverURL(cmd *cli.Command) string {
	return strings.TrimRight(cmd.String("server"), "/")
}

// websocketURL maps the server base URL onto the realtime endpoint of a session
func websocketURL(server, sessionID string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server URL: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime/session/" + url.PathEscape(sessionID)
	return u.String(), nil
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

func get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return body, nil
}

func listSessions(ctx context.Context, cmd *cli.Command) error {
	body, err := get(ctx, serverURL(cmd)+"/api/sessions")
	if err != nil {
		return err
	}
	var result struct {
		Total    int                   `json:"total"`
		Sessions []service.SessionInfo `json:"sessions"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to decode sessions: %w", err)
	}

	tw := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tCONNECTIONS\tGUESTS\tSTROKES\tTEXTBOXES\tLAST ACTIVE")
	for _, s := range result.Sessions {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n",
			s.ID, s.Connections, len(s.Guests), s.StrokeCount, s.TextboxCount,
			s.LastActiveAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func printState(ctx context.Context, cmd *cli.Command) error {
	id, err := sessionArg(cmd)
	if err != nil {
		return err
	}
	body, err := get(ctx, serverURL(cmd)+"/session-state/"+url.PathEscape(id))
	if err != nil {
		return err
	}
	var st state.SessionState
	if err := json.Unmarshal(body, &st); err != nil {
		return fmt.Errorf("failed to decode board: %w", err)
	}
	enc := json.NewEncoder(out(cmd))
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func exportPDF(ctx context.Context, cmd *cli.Command) error {
	id, err := sessionArg(cmd)
	if err != nil {
		return err
	}
	body, err := get(ctx, serverURL(cmd)+"/api/sessions/"+url.PathEscape(id)+"/export.pdf")
	if err != nil {
		return err
	}

	path := cmd.String("out")
	if path == "" {
		path = id + ".pdf"
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(out(cmd), "Wrote %s (%d bytes)\n", path, len(body))
	return nil
}

func watchSession(ctx context.Context, cmd *cli.Command) error {
	id, err := sessionArg(cmd)
	if err != nil {
		return err
	}
	wsURL, err := websocketURL(serverURL(cmd), id)
	if err != nil {
		return err
	}

	client, err := syncclient.New(syncclient.Config{
		URL:        wsURL,
		SessionID:  id,
		GuestName:  cmd.String("name"),
		MaxRetries: int(cmd.Int("retries")),
	})
	if err != nil {
		return err
	}

	w := out(cmd)
	err = client.Run(ctx, func(payload json.RawMessage, first bool) {
		kind := "update"
		if first {
			kind = "snapshot"
		}
		fmt.Fprintf(w, "%s %s %s\n", time.Now().Format(time.TimeOnly), kind, payload)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func readPayload(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func pushUpdate(ctx context.Context, cmd *cli.Command) error {
	id, err := sessionArg(cmd)
	if err != nil {
		return err
	}
	payload, err := readPayload(cmd.String("file"), cmd.Root().Reader)
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	patch, err := state.ParsePatch(payload)
	if err != nil {
		return err
	}
	if patch.Empty() {
		return fmt.Errorf("%w: payload carries no board fields", protocol.ErrMalformed)
	}
	// send only board fields, under their current names
	payload, err = json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}
	wsURL, err := websocketURL(serverURL(cmd), id)
	if err != nil {
		return err
	}

	if err := push(ctx, wsURL, id, cmd.String("name"), payload); err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "Pushed update to session %s\n", id)
	return nil
}

// push joins the session, waits for the snapshot and sends one update
func push(ctx context.Context, wsURL, sessionID, guestName string, payload []byte) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)

	join, err := protocol.EncodeJoin(sessionID, guestName)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		return fmt.Errorf("failed to join: %w", err)
	}
	if _, _, err := conn.ReadMessage(); err != nil {
		return fmt.Errorf("failed to receive snapshot: %w", err)
	}

	update, err := protocol.EncodeUpdate(payload)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, update); err != nil {
		return fmt.Errorf("failed to send update: %w", err)
	}
	return conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func validateBoard(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("board file is required")
	}
	data, err := readPayload(path, cmd.Root().Reader)
	if err != nil {
		return fmt.Errorf("failed to read board: %w", err)
	}

	st := state.New()
	if err := json.Unmarshal(data, st); err != nil {
		return fmt.Errorf("failed to parse board: %w", err)
	}

	problems := st.Problems()
	w := out(cmd)
	if len(problems) == 0 {
		fmt.Fprintf(w, "%s: ok (%d strokes, %d textboxes, %d guests)\n",
			path, len(st.Strokes), len(st.Textboxes), len(st.Guests))
		return nil
	}
	for _, p := range problems {
		fmt.Fprintf(w, "%s: %s\n", path, p)
	}
	return st.Validate()
}

func discoverServers(ctx context.Context, cmd *cli.Command) error {
	peers, err := discovery.Browse(cmd.Duration("timeout"))
	if err != nil {
		return err
	}
	w := out(cmd)
	if len(peers) == 0 {
		fmt.Fprintln(w, "No board servers found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tADDRESS\tINFO")
	for _, p := range peers {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Instance, p.Addr, strings.Join(p.Info, " "))
	}
	return tw.Flush()
}
