// Package server implements ServerFacade: it binds the WebSocket listener,
// resolves a router and a room for every incoming connection, and drives a
// ParticipantSession over it. It owns the gin engine, following the
// teacher's cmd/v1/session/main.go wiring
// (router groups, CORS, Prometheus /metrics, graceful shutdown) and
// internal/v1/transport/hub.go's upgrade-then-hand-off split.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/hocman2/sfu-coordinator/internal/config"
	"github.com/hocman2/sfu-coordinator/internal/dispatch"
	"github.com/hocman2/sfu-coordinator/internal/logging"
	"github.com/hocman2/sfu-coordinator/internal/middleware"
	"github.com/hocman2/sfu-coordinator/internal/participant"
	"github.com/hocman2/sfu-coordinator/internal/room"
	"github.com/hocman2/sfu-coordinator/pkg/id"
	"github.com/hocman2/sfu-coordinator/pkg/wire/monitorwire"
)

// EventSink publishes a lifecycle event to the monitor dispatch. It has the
// same underlying function type as room.EventSink, so one converts to the
// other.
type EventSink func(monitorwire.Event)

// Facade is the ServerFacade.
type Facade struct {
	cfg      *config.Config
	dispatch *dispatch.Dispatch
	rooms    *room.Registry
	sink     EventSink

	upgrader websocket.Upgrader
	engine   *gin.Engine
	srv      *http.Server
}

// New wires a Facade around an already-constructed RouterDispatch and
// RoomsRegistry, matching the spec's "ServerFacade: obtain a router from
// RouterDispatch, resolve the Room" control flow.
func New(cfg *config.Config, d *dispatch.Dispatch, rooms *room.Registry, sink EventSink) *Facade {
	f := &Facade{
		cfg:      cfg,
		dispatch: d,
		rooms:    rooms,
		sink:     sink,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	f.engine = f.buildEngine()
	return f
}

func (f *Facade) buildEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CorrelationID())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	engine.Use(cors.New(corsCfg))

	store := memory.NewStore()
	rate := limiter.Rate{Period: time.Second, Limit: 20}
	wsLimiter := mgin.NewMiddleware(limiter.New(store, rate))

	engine.GET("/ws", wsLimiter, f.handleWebSocket)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/healthz", f.handleHealthz)

	return engine
}

func (f *Facade) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"workers": f.dispatch.WorkerCount(),
		"rooms":   f.rooms.Count(),
	})
}

// handleWebSocket is the single /ws route: obtain a router, resolve a
// room (create-or-attach when roomId is given, fresh room otherwise),
// build a ParticipantSession, upgrade, and run it.
func (f *Facade) handleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()

	r, err := f.resolveRoom(ctx, c.Query("roomId"))
	if err != nil {
		logging.Error(ctx, "server: failed to resolve room", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no media worker available"})
		return
	}

	sess, err := participant.New(ctx, roomHandle{r}, f.sink)
	if err != nil {
		logging.Error(ctx, "server: failed to create participant session", zap.Error(err))
		r.Release()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to allocate transports"})
		return
	}

	conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(ctx, "server: websocket upgrade failed", zap.Error(err))
		r.Release()
		return
	}

	sess.Run(ctx, conn)
}

func (f *Facade) resolveRoom(ctx context.Context, roomIDParam string) (*room.Room, error) {
	if roomIDParam == "" {
		return f.rooms.CreateRoom(ctx)
	}
	roomID, err := id.ParseRoomId(roomIDParam)
	if err != nil {
		return f.rooms.CreateRoom(ctx)
	}
	return f.rooms.GetOrCreate(ctx, roomID)
}

// roomHandle adapts *room.Room to participant.RoomHandle so the
// participant package need not import room's concrete type.
type roomHandle struct{ *room.Room }

// Run binds the listener and serves until ctx is cancelled. It emits
// ServerStarted before listening and ServerClosed once Shutdown returns,
// matching §4.6.
func (f *Facade) Run(ctx context.Context) error {
	f.srv = &http.Server{
		Addr:    addrFor(f.cfg.Port),
		Handler: f.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		f.emit(monitorwire.ServerStarted())
		var err error
		if f.cfg.TLSEnabled() {
			logging.Info(ctx, "server: listening with TLS", zap.Int("port", f.cfg.Port))
			f.srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			err = f.srv.ListenAndServeTLS(f.cfg.TLSCertPath, f.cfg.TLSKeyPath)
		} else {
			if f.cfg.TLSRequestedButUnavailable() {
				logging.Error(ctx, "server: TLS requested but cert/key path missing, falling back to plain TCP")
			}
			logging.Info(ctx, "server: listening", zap.Int("port", f.cfg.Port))
			err = f.srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := f.srv.Shutdown(shutdownCtx)

	err := <-errCh
	f.emit(monitorwire.ServerClosed())
	if err != nil {
		return err
	}
	return shutdownErr
}

func (f *Facade) emit(e monitorwire.Event) {
	if f.sink != nil {
		f.sink(e)
	}
}

func addrFor(port int) string {
	return ":" + strconv.Itoa(port)
}
