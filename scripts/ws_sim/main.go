// Command ws_sim is a small interactive client for poking the server:
// it joins a session, prints everything the server sends, and publishes
// a position update for one object every tick.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/simsync-server/internal/proto"
	"github.com/vovakirdan/simsync-server/internal/utils"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_sim: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	session := flag.String("session", "lobby", "session to join")
	object := flag.String("object", "probe-1", "object id to move")
	token := flag.String("token", "", "optional JWT from /api/login or /api/guest")
	tick := flag.Duration("tick", 2*time.Second, "interval between position updates")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	helloPayload, err := json.Marshal(proto.HelloData{
		Session:  *session,
		Token:    *token,
		Protocol: proto.Version,
	})
	if err != nil {
		return fmt.Errorf("marshal hello: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Frame{Type: proto.FrameHello, Data: helloPayload}); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	fmt.Printf("Connected to %s, session %s. Ctrl+C to exit.\n", *addr, *session)

	go writeLoop(ctx, conn, *object, *tick)

	readLoop(ctx, conn)

	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch frame.Type {
		case proto.FrameWelcome:
			var welcome proto.WelcomeData
			if err := json.Unmarshal(frame.Data, &welcome); err != nil {
				log.Printf("unmarshal welcome: %v", err)
				continue
			}
			fmt.Printf("welcome: client %s, join order %d\n", welcome.ClientID, welcome.JoinOrder)
		case proto.FrameSyncBegin:
			fmt.Println("-- sync begin --")
		case proto.FrameSyncState:
			var state proto.SyncStateData
			if err := json.Unmarshal(frame.Data, &state); err != nil {
				log.Printf("unmarshal sync-state: %v", err)
				continue
			}
			fmt.Printf("state %s = %s\n", state.Key, state.Payload)
		case proto.FrameSyncEnd:
			fmt.Println("-- sync end --")
		case proto.FrameAuthority:
			var auth proto.AuthorityData
			if err := json.Unmarshal(frame.Data, &auth); err != nil {
				log.Printf("unmarshal authority: %v", err)
				continue
			}
			fmt.Printf("authoritative: %v\n", auth.Authoritative)
		case proto.FrameError:
			var errData proto.ErrorData
			if err := json.Unmarshal(frame.Data, &errData); err != nil {
				log.Printf("unmarshal error: %v", err)
				continue
			}
			fmt.Printf("server error %s: %s\n", errData.Code, errData.Msg)
		default:
			fmt.Printf("<- %s %s\n", frame.Type, frame.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, object string, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	step := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			step++
			payload, err := json.Marshal(map[string]any{
				"object": object,
				"x":      step,
				"y":      step * 2,
			})
			if err != nil {
				log.Printf("marshal update: %v", err)
				continue
			}
			frame := proto.Frame{Type: "position-update", ID: utils.NewID(), Data: payload}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				log.Printf("send update: %v", err)
				return
			}
		}
	}
}
