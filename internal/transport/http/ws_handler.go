package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/simsync-server/internal/auth"
	"github.com/vovakirdan/simsync-server/internal/config"
	"github.com/vovakirdan/simsync-server/internal/core"
	"github.com/vovakirdan/simsync-server/internal/proto"
	"github.com/vovakirdan/simsync-server/internal/store"
	"github.com/vovakirdan/simsync-server/internal/transport/ws"
	"github.com/vovakirdan/simsync-server/internal/utils"
)

const (
	helloTimeout   = 10 * time.Second
	defaultSession = "lobby"
)

// WSHandler upgrades HTTP connections, runs the hello/welcome handshake and
// hands the connection over to a core client handle.
type WSHandler struct {
	registry *core.Registry
	rules    *core.RuleSet
	auth     *auth.Service
	journal  store.SessionJournal
	cfg      config.Config
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. journal may be nil.
func NewWSHandler(registry *core.Registry, rules *core.RuleSet, authService *auth.Service, journal store.SessionJournal, cfg config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		registry: registry,
		rules:    rules,
		auth:     authService,
		journal:  journal,
		cfg:      cfg,
		log:      logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}

	hello, ok := h.handshake(ctx, conn)
	if !ok {
		return
	}

	userID := ""
	if hello.Token != "" {
		claims, err := h.auth.ValidateToken(hello.Token)
		if err != nil {
			h.rejectAndClose(ctx, conn, proto.ErrCodeUnauthorized, "invalid token")
			return
		}
		userID = strconv.FormatInt(claims.UserID, 10)
	}

	sessionName := hello.Session
	if sessionName == "" {
		sessionName = defaultSession
	}

	transport := ws.NewConn(conn)
	client := core.NewClient(transport, hello.Protocol, h.rules, h.log)
	client.SetReplyTimeout(h.cfg.ReplyTimeout)
	if userID != "" {
		client.SetUserID(userID)
	}

	welcome, err := json.Marshal(proto.WelcomeData{
		ClientID:  client.ID(),
		JoinOrder: client.JoinOrder(),
		Protocol:  proto.Version,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("marshal welcome")
		client.Leave()
		return
	}
	if err := transport.Send(ctx, proto.Frame{Type: proto.FrameWelcome, ID: utils.NewID(), Data: welcome}); err != nil {
		h.log.Warn().Err(err).Msg("write welcome")
		client.Leave()
		return
	}

	closed := make(chan struct{})
	detachClose := client.OnClose(func() { close(closed) })
	defer detachClose()

	detachMsg := client.OnMessage(func(c *core.Client, msg core.Message) {
		if sess := c.Session(); sess != nil {
			sess.Relay(c, msg)
		}
	})
	defer detachMsg()

	sess := h.registry.Get(sessionName)
	h.record(client, sessionName, store.JournalEventJoin)

	joinCtx, cancelJoin := context.WithTimeout(ctx, h.cfg.SyncTimeout)
	err = client.Join(joinCtx, sess)
	cancelJoin()
	if err != nil {
		h.log.Warn().Err(err).Str("client_id", client.ID()).Str("session", sessionName).Msg("join failed")
		h.record(client, sessionName, store.JournalEventLeave)
		h.registry.Release(sess)
		return
	}

	// First joiner drives the simulation until it leaves.
	if sess.Arbiter() == nil {
		sess.PromoteAuthority(client)
	}

	select {
	case <-closed:
	case <-ctx.Done():
		client.Leave()
	}

	h.record(client, sessionName, store.JournalEventLeave)
	h.registry.Release(sess)
}

// handshake reads and validates the hello frame. On failure the connection
// is rejected and closed.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn) (proto.HelloData, bool) {
	helloCtx, cancel := context.WithTimeout(ctx, helloTimeout)
	defer cancel()

	var frame proto.Frame
	if err := wsjson.Read(helloCtx, conn, &frame); err != nil {
		h.log.Debug().Err(err).Msg("read hello")
		conn.Close(websocket.StatusPolicyViolation, "hello expected")
		return proto.HelloData{}, false
	}
	if frame.Type != proto.FrameHello {
		h.rejectAndClose(ctx, conn, proto.ErrCodeBadHello, "first frame must be hello")
		return proto.HelloData{}, false
	}

	var hello proto.HelloData
	if err := json.Unmarshal(frame.Data, &hello); err != nil {
		h.rejectAndClose(ctx, conn, proto.ErrCodeBadHello, "malformed hello data")
		return proto.HelloData{}, false
	}
	if !proto.Compatible(hello.Protocol) {
		h.rejectAndClose(ctx, conn, proto.ErrCodeIncompatibleProtocol, "server speaks "+proto.Version)
		return proto.HelloData{}, false
	}
	return hello, true
}

func (h *WSHandler) rejectAndClose(ctx context.Context, conn *websocket.Conn, code, msg string) {
	data, err := json.Marshal(proto.ErrorData{Code: code, Msg: msg})
	if err == nil {
		writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_ = wsjson.Write(writeCtx, conn, proto.Frame{Type: proto.FrameError, Data: data})
		cancel()
	}
	conn.Close(websocket.StatusPolicyViolation, code)
}

func (h *WSHandler) record(client *core.Client, session, event string) {
	if h.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	entry := store.JournalEntry{
		ClientID:  client.ID(),
		UserID:    client.UserID(),
		Session:   session,
		JoinOrder: client.JoinOrder(),
		Event:     event,
	}
	if err := h.journal.Record(ctx, entry); err != nil {
		h.log.Warn().Err(err).Str("client_id", client.ID()).Msg("journal write failed")
	}
}
