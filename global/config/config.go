package config

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/ivanros02/los4Fantasticos/data/database/mgo/mongoutil"
	"github.com/ivanros02/los4Fantasticos/logger"
	mgoSrv "github.com/ivanros02/los4Fantasticos/service/mgo"
	redis "github.com/ivanros02/los4Fantasticos/service/storage/redis"
	ids "github.com/ivanros02/los4Fantasticos/tools/ids"
)

const NodeTypeLocationRelay = "locationRelay" // 网关节点

var Global = AppConfig{
	NodeType: NodeTypeLocationRelay,
	NodeId:   "relay_01",
	Port:     8080,

	SendQueueSize: 64,
	FanoutWorkers: 4,
	FanoutQueue:   256,

	ReadLimit:  1 << 16, // 64KB, location frames are tiny
	PongWait:   60 * time.Second,
	PingPeriod: 25 * time.Second,
	WriteWait:  10 * time.Second,

	SaveDistanceMeters: 50,
	PresenceTTL:        2 * time.Minute,
	StoreTimeout:       2 * time.Second,
}

type AppConfig struct {
	NodeType string
	NodeId   string
	Port     int

	// per-connection outbound queue and broadcast pool
	SendQueueSize int
	FanoutWorkers int
	FanoutQueue   int

	// websocket tuning
	ReadLimit  int64
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration

	// persistence throttle: minimum movement before a durable write
	SaveDistanceMeters float64
	PresenceTTL        time.Duration
	StoreTimeout       time.Duration
}

func ConfigAll(ctx context.Context) {
	ConfigIds()
	ConfigRedis()
	ConfigMgo(ctx)
}

func ConfigIds() {
	node := int64(100)
	if v := os.Getenv("RELAY_NODE_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			node = n
		}
	}
	ids.SetNodeID(node)
}

func GetJwtSecret() []byte {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		return []byte(v)
	}
	return []byte("mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o=")
}

func ConfigRedis() {
	cfg := redis.Config{
		Addr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}
	if err := redis.InitRedis(cfg); err != nil {
		// presence mirror is optional, the relay keeps going without it
		logger.Warnf("[config] redis unavailable: %v", err)
	}
}

func ConfigMgo(ctx context.Context) {
	cfg := &mongoutil.Config{
		Uri:         getenv("MONGO_URI", "mongodb://localhost:27017"),
		Database:    getenv("MONGO_DB", "family"),
		Username:    os.Getenv("MONGO_USER"),
		Password:    os.Getenv("MONGO_PASSWORD"),
		MaxPoolSize: 20,
		MaxRetry:    3,
	}

	mgoSrv.StartAsync(ctx, cfg)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
