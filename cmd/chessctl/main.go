// Command chessctl is a terminal client for the chess session broker. It can
// create a room and wait for an opponent, join an existing room by code, or
// run a scripted two-player exchange against a broker to verify that
// matchmaking and move relay work end to end.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/chessmatch/game/protocol"
)

func main() {
	cmd := &cli.Command{
		Name:  "chessctl",
		Usage: "talk to a chess session broker over WebSocket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server",
				Value: "ws://localhost:8080/ws",
				Usage: "WebSocket URL of the broker",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 30 * time.Second,
				Usage: "how long to wait for a reply before giving up",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create a room, print its join code, and wait for an opponent",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "display name sent to the opponent",
						Value: "chessctl",
					},
				},
				Action: runCreate,
			},
			{
				Name:  "join",
				Usage: "join an existing room by code",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "code",
						Usage:    "join code printed by the room creator",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "display name sent to the opponent",
						Value: "chessctl",
					},
				},
				Action: runJoin,
			},
			{
				Name:   "smoke",
				Usage:  "run a scripted two-player exchange against the broker",
				Action: runSmoke,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "chessctl: %v\n", err)
		os.Exit(1)
	}
}

// session wraps one broker connection and the envelope plumbing around it.
type session struct {
	ws      *websocket.Conn
	id      string
	timeout time.Duration
}

func dial(cmd *cli.Command) (*session, error) {
	url := cmd.String("server")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	s := &session{ws: ws, timeout: cmd.Duration("timeout")}
	event, msg, err := s.read()
	if err != nil {
		ws.Close()
		return nil, err
	}
	if event != string(protocol.EventStart) {
		ws.Close()
		return nil, fmt.Errorf("expected Start from broker, got %q", event)
	}
	s.id = msg
	return s, nil
}

func (s *session) close() { s.ws.Close() }

// send writes one request envelope. The broker expects msg to be a JSON
// string, so structured payloads are marshaled and carried quoted.
func (s *session) send(event protocol.Event, payload any) error {
	msg, ok := payload.(string)
	if !ok {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		msg = string(data)
	}
	frame, err := json.Marshal(struct {
		Event string `json:"event"`
		Msg   string `json:"msg"`
	}{Event: string(event), Msg: msg})
	if err != nil {
		return err
	}
	return s.ws.WriteMessage(websocket.TextMessage, frame)
}

// read returns the next envelope's event name and raw msg string.
func (s *session) read() (string, string, error) {
	s.ws.SetReadDeadline(time.Now().Add(s.timeout))
	_, data, err := s.ws.ReadMessage()
	if err != nil {
		return "", "", err
	}
	var envelope struct {
		Event string          `json:"event"`
		Msg   json.RawMessage `json:"msg"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", "", fmt.Errorf("malformed frame from broker: %w", err)
	}
	var msg string
	if err := json.Unmarshal(envelope.Msg, &msg); err != nil {
		msg = string(envelope.Msg)
	}
	return envelope.Event, msg, nil
}

// expect reads frames until one matches event, surfacing error frames.
func (s *session) expect(event protocol.Event) (string, error) {
	for {
		got, msg, err := s.read()
		if err != nil {
			return "", err
		}
		switch got {
		case string(event):
			return msg, nil
		case string(protocol.KindParseError), string(protocol.KindInvalidCode), string(protocol.KindRoomFull):
			return "", fmt.Errorf("broker rejected request: %s: %s", got, msg)
		default:
			fmt.Printf("  (ignoring %s: %s)\n", got, msg)
		}
	}
}

func runCreate(ctx context.Context, cmd *cli.Command) error {
	s, err := dial(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.send(protocol.EventGetCode, cmd.String("name")); err != nil {
		return err
	}
	msg, err := s.expect(protocol.EventGetCode)
	if err != nil {
		return err
	}

	var issued protocol.CodeIssued
	if err := json.Unmarshal([]byte(msg), &issued); err != nil {
		return fmt.Errorf("unexpected GetCode payload: %w", err)
	}
	fmt.Printf("Room created. Join code: %d\n", issued.Code)
	fmt.Println("Waiting for an opponent...")

	msg, err = s.expect(protocol.EventConnectWith)
	if err != nil {
		return err
	}
	fmt.Printf("Opponent arrived: %s\n", msg)
	return nil
}

func runJoin(ctx context.Context, cmd *cli.Command) error {
	if _, err := protocol.ParseRoomCode(cmd.String("code")); err != nil {
		return fmt.Errorf("bad join code %q", cmd.String("code"))
	}

	s, err := dial(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	join := protocol.JoinPayload{RoomCode: cmd.String("code"), Name: cmd.String("name")}
	if err := s.send(protocol.EventConnectWith, join); err != nil {
		return err
	}
	msg, err := s.expect(protocol.EventConnectWith)
	if err != nil {
		return err
	}
	fmt.Printf("Joined room %s. Opponent: %s\n", cmd.String("code"), msg)

	if err := s.send(protocol.EventOppReady, cmd.String("code")); err != nil {
		return err
	}
	fmt.Println("Signaled ready. Waiting for the first move...")

	msg, err = s.expect(protocol.EventMove)
	if err != nil {
		return err
	}
	fmt.Printf("First move received: %s\n", msg)
	return nil
}

// runSmoke drives both sides of a match through one full exchange: pairing,
// ready signal, a relayed move each way, and a game-over notice.
func runSmoke(ctx context.Context, cmd *cli.Command) error {
	creator, err := dial(cmd)
	if err != nil {
		return err
	}
	defer creator.close()
	fmt.Printf("creator connected as %s\n", creator.id)

	if err := creator.send(protocol.EventGetCode, ""); err != nil {
		return err
	}
	msg, err := creator.expect(protocol.EventGetCode)
	if err != nil {
		return err
	}
	var issued protocol.CodeIssued
	if err := json.Unmarshal([]byte(msg), &issued); err != nil {
		return fmt.Errorf("unexpected GetCode payload: %w", err)
	}
	code := fmt.Sprintf("%d", issued.Code)
	fmt.Printf("room %s created\n", code)

	joiner, err := dial(cmd)
	if err != nil {
		return err
	}
	defer joiner.close()
	fmt.Printf("joiner connected as %s\n", joiner.id)

	if err := joiner.send(protocol.EventConnectWith, protocol.JoinPayload{RoomCode: code, Name: "smoke"}); err != nil {
		return err
	}
	if _, err := joiner.expect(protocol.EventConnectWith); err != nil {
		return err
	}
	if _, err := creator.expect(protocol.EventConnectWith); err != nil {
		return err
	}
	fmt.Println("pairing ok")

	if err := joiner.send(protocol.EventOppReady, code); err != nil {
		return err
	}
	if _, err := creator.expect(protocol.EventOppReady); err != nil {
		return err
	}
	fmt.Println("ready signal ok")

	// Creator holds the first turn: white pawn two squares forward.
	move := protocol.MovePayload{RoomCode: code, I: 6, J: 4, K: 4, L: 4}
	if err := creator.send(protocol.EventMove, move); err != nil {
		return err
	}
	if _, err := joiner.expect(protocol.EventMove); err != nil {
		return err
	}
	fmt.Println("creator move relayed")

	reply := protocol.MovePayload{RoomCode: code, I: 1, J: 4, K: 3, L: 4}
	if err := joiner.send(protocol.EventMove, reply); err != nil {
		return err
	}
	if _, err := creator.expect(protocol.EventMove); err != nil {
		return err
	}
	fmt.Println("joiner move relayed")

	if err := creator.send(protocol.EventGameOver, code); err != nil {
		return err
	}
	if _, err := joiner.expect(protocol.EventGameOver); err != nil {
		return err
	}
	fmt.Println("game over relayed")

	fmt.Println("smoke exchange passed")
	return nil
}
