package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/simsync-server/internal/auth"
	"github.com/vovakirdan/simsync-server/internal/config"
	"github.com/vovakirdan/simsync-server/internal/core"
	"github.com/vovakirdan/simsync-server/internal/store"
)

// Deps bundles the collaborators the HTTP layer needs.
type Deps struct {
	Registry *core.Registry
	Rules    *core.RuleSet
	Auth     *auth.Service
	Journal  store.SessionJournal
	Config   config.Config
	Log      *zerolog.Logger
}

// NewServer builds the HTTP server: REST auth endpoints, a health probe and
// the websocket upgrade route.
func NewServer(d Deps) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(LoggerMiddleware(d.Log), gin.Recovery())

	api := NewAPIHandlers(d.Auth, d.Registry, d.Log)
	router.POST("/api/register", api.Register)
	router.POST("/api/login", api.Login)
	router.POST("/api/guest", api.Guest)
	router.GET("/api/sessions", AuthMiddleware(d.Auth, d.Log), api.Sessions)

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	wsHandler := NewWSHandler(d.Registry, d.Rules, d.Auth, d.Journal, d.Config, d.Log)
	router.GET("/ws", gin.WrapH(wsHandler))

	return &stdhttp.Server{
		Addr:              d.Config.Addr,
		Handler:           router,
		ReadHeaderTimeout: d.Config.ReadHeaderTimeout,
	}
}
