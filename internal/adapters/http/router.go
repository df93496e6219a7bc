package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmutlucod/realtime-call-app/internal/adapters/signal"
	"github.com/mmutlucod/realtime-call-app/internal/adapters/turnrest"
	"github.com/mmutlucod/realtime-call-app/internal/app/orch"
	"github.com/mmutlucod/realtime-call-app/internal/config"
	"github.com/mmutlucod/realtime-call-app/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "ct"

// CallHistory is the read side of the call log.
type CallHistory interface {
	Recent(ctx context.Context, limit int) ([]domain.CallRecord, error)
}

type Deps struct {
	Orch    *orch.Coordinator
	History CallHistory
	Turn    *turnrest.Generator
}

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware pins a random client token to the cookie session so
// log lines from one browser or device can be correlated across reconnects.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			s.Set(clientTokenKey, token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("CallSessions", store))
	r.Use(ClientTokenMiddleware())

	ctrl := signal.NewSignalWSController(deps.Orch, signal.Options{
		ReadLimit:     cfg.ReadLimit,
		PingPeriod:    cfg.PingPeriod,
		PongWait:      cfg.PongWait,
		SendBuffer:    cfg.SendBuffer,
		RatePerSecond: cfg.Rate.MessagesPerSecond,
		RateBurst:     cfg.Rate.Burst,
	})
	staticICE, err := cfg.ICE.WebRTCServers()
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ice servers")
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "present": deps.Orch.Registry.Len()})
	})

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	api.GET("/presence", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"identities": deps.Orch.Presence()})
	})

	api.GET("/ice", func(c *gin.Context) {
		servers := append([]webrtc.ICEServer(nil), staticICE...)
		if deps.Turn != nil {
			turn, err := deps.Turn.ICEServer(c.Query("identity"))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			servers = append(servers, turn)
		}
		c.JSON(http.StatusOK, gin.H{"iceServers": servers})
	})

	api.GET("/calls", func(c *gin.Context) {
		if deps.History == nil {
			c.JSON(http.StatusOK, gin.H{"calls": []domain.CallRecord{}})
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit < 1 || limit > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		calls, err := deps.History.Recent(c.Request.Context(), limit)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("call history")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "call history unavailable"})
			return
		}
		if calls == nil {
			calls = []domain.CallRecord{}
		}
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})

	log.Info().Str("module", "adapters.http").Int("ice_servers", len(staticICE)).Bool("turn_rest", deps.Turn != nil).Msg("router setup")
	return r
}
