package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	config "github.com/ivanros02/los4Fantasticos/global/config"
	"github.com/ivanros02/los4Fantasticos/logger"
	midsec "github.com/ivanros02/los4Fantasticos/middleware/security"
	"github.com/ivanros02/los4Fantasticos/service/auth"
	"github.com/ivanros02/los4Fantasticos/service/relay"
	"github.com/ivanros02/los4Fantasticos/service/storage"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config.ConfigAll(ctx)

	nodeID := os.Getenv("RELAY_ID")
	if nodeID == "" {
		nodeID = config.Global.NodeId
	}

	verifier := auth.NewJWT(auth.DefaultOptions(config.GetJwtSecret()))
	store := storage.NewMongoStore()
	presence := storage.NewRedisPresence()

	srv := relay.NewServer(relay.Config{
		NodeId:             nodeID,
		SendQueueSize:      config.Global.SendQueueSize,
		FanoutWorkers:      config.Global.FanoutWorkers,
		FanoutQueue:        config.Global.FanoutQueue,
		ReadLimit:          config.Global.ReadLimit,
		PongWait:           config.Global.PongWait,
		PingPeriod:         config.Global.PingPeriod,
		WriteWait:          config.Global.WriteWait,
		SaveDistanceMeters: config.Global.SaveDistanceMeters,
		PresenceTTL:        config.Global.PresenceTTL,
		StoreTimeout:       config.Global.StoreTimeout,
	}, verifier, store, presence)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws", srv.HandleWS) // e.g. ws://localhost:8080/ws?token=<jwt>

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "node": nodeID})
	})

	// read-only ops surface, same bearer tokens as the websocket handshake
	api := r.Group("/api", midsec.Middleware(verifier))

	api.GET("/online", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"online": srv.Registry().OnlineUIDs()})
	})

	// last persisted position for one member
	api.GET("/locations/:uid", func(c *gin.Context) {
		loc, err := store.Last(c.Request.Context(), c.Param("uid"))
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}
		if loc == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no location"})
			return
		}
		c.JSON(http.StatusOK, loc)
	})

	addr := fmt.Sprintf(":%d", config.Global.Port)
	logger.Infof("[HTTP] relay %s listening on %s", nodeID, addr)
	if err := r.Run(addr); err != nil {
		logger.Errorf("HTTP server failed: %v", err)
		os.Exit(1)
	}
}
