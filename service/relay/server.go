package relay

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ivanros02/los4Fantasticos/logger"
	"github.com/ivanros02/los4Fantasticos/service/auth"
	"github.com/ivanros02/los4Fantasticos/tools/decode"
	"github.com/ivanros02/los4Fantasticos/tools/ids"
	"github.com/ivanros02/los4Fantasticos/tools/safe"
)

// Store persists a member's last known position. One document per member,
// overwritten in place.
type Store interface {
	Save(ctx context.Context, uid string, loc Location) error
}

// Presence mirrors online/offline transitions into shared storage so sibling
// services can answer "is this member online" without asking the relay.
// Optional and fail-soft; the in-memory registry stays the source of truth.
type Presence interface {
	Online(ctx context.Context, uid, nodeID string, ttl time.Duration) error
	Offline(ctx context.Context, uid string) error
}

type Config struct {
	NodeId string

	SendQueueSize int
	FanoutWorkers int
	FanoutQueue   int

	ReadLimit  int64
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration

	// minimum movement (meters) since the last durable write before a
	// disconnect-time position is persisted again
	SaveDistanceMeters float64
	PresenceTTL        time.Duration
	StoreTimeout       time.Duration
}

func (c *Config) norm() {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 64
	}
	if c.FanoutWorkers <= 0 {
		c.FanoutWorkers = 4
	}
	if c.FanoutQueue <= 0 {
		c.FanoutQueue = 256
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 16
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = 25 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.SaveDistanceMeters <= 0 {
		c.SaveDistanceMeters = 50
	}
	if c.PresenceTTL <= 0 {
		c.PresenceTTL = 2 * time.Minute
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 2 * time.Second
	}
}

// Server is the relay coordinator: it owns the connection lifecycle, routes
// inbound position updates into the registry, broadcasts to the family group
// and decides which positions are worth a durable write.
type Server struct {
	cfg      Config
	verifier auth.Verifier
	store    Store
	presence Presence

	registry *Registry
	fanout   *Fanout

	// last position durably written per member, for the distance throttle.
	// Empty at process start: the first disconnect always persists.
	savedMu   sync.Mutex
	lastSaved map[string]Location
}

func NewServer(cfg Config, verifier auth.Verifier, store Store, presence Presence) *Server {
	cfg.norm()
	return &Server{
		cfg:       cfg,
		verifier:  verifier,
		store:     store,
		presence:  presence,
		registry:  NewRegistry(),
		fanout:    NewFanout(cfg.FanoutWorkers, cfg.FanoutQueue),
		lastSaved: make(map[string]Location),
	}
}

func (s *Server) Registry() *Registry { return s.registry }

var upgraded = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWS is the relay entry point: upgrade, authenticate, register, pump.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgraded.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[WS] upgrade websocket error: %v", err)
		return
	}

	// Credential is presented once, at handshake time. Any verification
	// failure surfaces to the client only as a closed connection: no frame
	// traffic, no registry entry, no broadcast.
	token := bearerToken(c.Request)
	uid, err := s.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		logger.Infof("[WS] auth failed remote=%s: %v", ws.RemoteAddr(), err)
		_ = ws.Close()
		return
	}

	client := NewClient(ids.GenerateString(), uid, ws, s.cfg.SendQueueSize)
	if err := s.registry.Register(client); err != nil {
		logger.Errorf("[WS] register conn=%s: %v", client.ConnID, err)
		_ = ws.Close()
		return
	}

	if s.presence != nil {
		safe.SafeGo(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
			defer cancel()
			if err := s.presence.Online(ctx, uid, s.cfg.NodeId, s.cfg.PresenceTTL); err != nil {
				logger.Warnf("[presence] online uid=%s: %v", uid, err)
			}
		})
	}

	go client.writePump(s.cfg.PingPeriod, s.cfg.WriteWait)

	logger.Infof("[WS] member connected uid=%s conn=%s", uid, client.ConnID)

	s.readLoop(client)
	s.teardown(client)
}

func (s *Server) readLoop(client *Client) {
	ws := client.WS
	ws.SetReadLimit(s.cfg.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[WS] peer closed conn=%s err=%v", client.ConnID, rerr)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[WS] read timeout conn=%s err=%v", client.ConnID, rerr)
			} else {
				logger.Infof("[WS] read err conn=%s err=%v", client.ConnID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseFrameJSON(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Warnf("[WS] ParseFrameJSON err conn=%s err=%v sample=%q len=%d",
				client.ConnID, perr, sample, len(data))
			continue
		}

		switch frame.Event {
		case EventUpdateLocation:
			s.handleUpdateLocation(client, frame)
		case EventRequestAllLocations:
			s.handleRequestAllLocations(client)
		default:
			logger.Debugf("[WS] no handler for event=%q conn=%s", frame.Event, client.ConnID)
		}
	}
}

func (s *Server) handleUpdateLocation(client *Client, frame *Frame) {
	loc, err := decode.DecodeMap[Location](frame.Data)
	if err != nil {
		logger.Warnf("[WS] bad %s payload conn=%s: %v", EventUpdateLocation, client.ConnID, err)
		return
	}

	uid, ok := s.registry.RecordLocation(client.ConnID, *loc)
	if !ok {
		// connection is mid-teardown, drop the orphaned update
		logger.Debugf("[WS] orphaned update conn=%s", client.ConnID)
		return
	}

	payload, err := EncodeLocationUpdate(uid, *loc)
	if err != nil {
		logger.Errorf("[WS] encode %s: %v", EventLocationUpdate, err)
		return
	}
	// the whole group hears it, the sender's own echo included
	s.fanout.Broadcast(s.registry.Clients(), payload)
}

func (s *Server) handleRequestAllLocations(client *Client) {
	payload, err := EncodeAllLocations(s.registry.Snapshot())
	if err != nil {
		logger.Errorf("[WS] encode %s: %v", EventAllLocations, err)
		return
	}
	if !client.enqueue(payload) {
		logger.Warnf("[WS] drop %s reply conn=%s", EventAllLocations, client.ConnID)
	}
}

// teardown runs the disconnect sequence exactly once per connection: remove,
// persist (throttled), notify the remaining members. The idempotent Remove is
// the gate, so racing transport cleanup cannot double-fire any of it.
func (s *Server) teardown(client *Client) {
	defer client.Close()

	uid, last, ok := s.registry.Remove(client.ConnID)
	if !ok {
		return
	}

	if last != nil {
		s.persistLocation(uid, *last)
	}

	if payload, err := EncodeUserDisconnected(uid); err == nil {
		s.fanout.Broadcast(s.registry.Clients(), payload)
	} else {
		logger.Errorf("[WS] encode %s: %v", EventUserDisconnected, err)
	}

	if s.presence != nil {
		safe.SafeGo(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
			defer cancel()
			if err := s.presence.Offline(ctx, uid); err != nil {
				logger.Warnf("[presence] offline uid=%s: %v", uid, err)
			}
		})
	}

	logger.Infof("[WS] member disconnected uid=%s conn=%s", uid, client.ConnID)
}

// persistLocation applies the spatial throttle and, when the member moved far
// enough (or was never persisted this process), writes the position through.
// Runs without holding the registry lock; a slow store write cannot stall
// other members' updates.
func (s *Server) persistLocation(uid string, loc Location) {
	if s.store == nil {
		return
	}

	s.savedMu.Lock()
	last, saved := s.lastSaved[uid]
	s.savedMu.Unlock()

	if saved {
		if d := Distance(last, loc); d < s.cfg.SaveDistanceMeters {
			logger.Debugf("[store] skip save uid=%s moved=%.1fm", uid, d)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
	defer cancel()
	if err := s.store.Save(ctx, uid, loc); err != nil {
		// fail-soft: the position is simply absent from durable storage
		// until a future session succeeds
		logger.Errorf("[store] save uid=%s: %v", uid, err)
		return
	}

	s.savedMu.Lock()
	s.lastSaved[uid] = loc
	s.savedMu.Unlock()
}

// bearerToken pulls the handshake credential from the token query parameter
// or an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
