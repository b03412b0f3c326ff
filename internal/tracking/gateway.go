package tracking

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sealtrack/sealtrack-backend/internal/locations"
	pkgauth "github.com/sealtrack/sealtrack-backend/pkg/auth"
	"github.com/sealtrack/sealtrack-backend/pkg/auth/session"
	"github.com/sealtrack/sealtrack-backend/pkg/config"
	"github.com/sealtrack/sealtrack-backend/pkg/enums"
	apperrors "github.com/sealtrack/sealtrack-backend/pkg/errors"
	"github.com/sealtrack/sealtrack-backend/pkg/logger"
	"github.com/sealtrack/sealtrack-backend/pkg/metrics"
)

// capabilities lists the roles allowed to send each client frame type.
// Authorization is per-message, not per-connection: a socket authenticated as
// an agent never gains admin frames, whatever it was doing before.
var capabilities = map[string]map[enums.Role]struct{}{
	TypeLocationReport: {
		enums.RoleFieldAgent: {},
	},
	TypeTaskSubscribe: {
		enums.RoleAdmin:      {},
		enums.RoleSupervisor: {},
	},
	TypeTaskUnsubscribe: {
		enums.RoleAdmin:      {},
		enums.RoleSupervisor: {},
	},
}

// Gateway terminates tracking websockets: it authenticates the handshake,
// dispatches client frames by capability, and fans location updates out to
// task rooms.
type Gateway struct {
	cfg      config.TrackingConfig
	jwtCfg   config.JWTConfig
	sessions session.AccessSessionChecker
	limiter  PingLimiter
	loc      *locations.Service
	hub      *Hub
	metrics  *metrics.Tracking
	logg     *logger.Logger
	validate *validator.Validate
	upgrader websocket.Upgrader
}

// NewGateway wires the websocket gateway.
func NewGateway(
	cfg config.TrackingConfig,
	jwtCfg config.JWTConfig,
	sessions session.AccessSessionChecker,
	limiter PingLimiter,
	loc *locations.Service,
	hub *Hub,
	m *metrics.Tracking,
	logg *logger.Logger,
) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		jwtCfg:   jwtCfg,
		sessions: sessions,
		limiter:  limiter,
		loc:      loc,
		hub:      hub,
		metrics:  m,
		logg:     logg,
		validate: validator.New(),
	}
	allowed := cfg.AllowedOrigins()
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, candidate := range allowed {
				if strings.EqualFold(candidate, origin) {
					return true
				}
			}
			return false
		},
	}
	return g
}

// ServeHTTP upgrades the handshake and runs the connection until it drops.
// An invalid credential still upgrades so the client receives a framed error
// before the forced close.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	claims, authErr := g.authenticate(r)
	if authErr != nil {
		frame, _ := marshalFrame(TypeError, Ack{
			Of:      "handshake",
			Code:    string(apperrors.CodeUnauthorized),
			Error:   "authentication required",
			Success: false,
		})
		_ = conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
		_ = conn.WriteJSON(frame)
		_ = conn.Close()
		return
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		_ = conn.Close()
		return
	}

	client := newClient(conn, userID, claims.Role, remoteIP(r), g.cfg.SendBufferSize)
	if g.metrics != nil {
		g.metrics.ActiveConnections.Inc()
	}
	ctx := g.logg.WithUserID(r.Context(), claims.UserID)
	ctx = g.logg.WithActorRole(ctx, string(claims.Role))
	g.logg.Info(ctx, "tracking connection opened")

	go client.writePump(g)
	client.readPump(context.WithoutCancel(ctx), g)
}

// authenticate pulls the bearer credential from the handshake, preferring the
// Authorization header over the token query parameter, and verifies both the
// signature and that the session is still live.
func (g *Gateway) authenticate(r *http.Request) (*pkgauth.AccessTokenClaims, error) {
	token := ""
	if header := r.Header.Get("Authorization"); header != "" {
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "missing credential")
	}

	claims, err := pkgauth.ParseAccessToken(g.jwtCfg, token)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnauthorized, err, "invalid credential")
	}

	if g.sessions != nil {
		live, err := g.sessions.HasSession(r.Context(), claims.ID)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDependency, err, "checking session")
		}
		if !live {
			return nil, apperrors.New(apperrors.CodeUnauthorized, "session revoked")
		}
	}
	return claims, nil
}

// dispatch routes one client frame through the capability gate to its
// handler. Every frame gets an ack, success or not.
func (g *Gateway) dispatch(ctx context.Context, client *Client, frame Frame) {
	allowedRoles, known := capabilities[frame.Type]
	if !known {
		g.ack(client, Ack{
			Of:    frame.Type,
			Code:  string(apperrors.CodeValidation),
			Error: "unknown message type",
		})
		return
	}
	if _, permitted := allowedRoles[client.Role()]; !permitted {
		g.ack(client, Ack{
			Of:    frame.Type,
			Code:  string(apperrors.CodeForbidden),
			Error: "role not permitted for this message",
		})
		return
	}

	switch frame.Type {
	case TypeLocationReport:
		g.handleReport(ctx, client, frame)
	case TypeTaskSubscribe:
		g.handleSubscribe(ctx, client, frame)
	case TypeTaskUnsubscribe:
		g.handleUnsubscribe(client, frame)
	}
}

func (g *Gateway) handleReport(ctx context.Context, client *Client, frame Frame) {
	allowed, err := g.limiter.Allow(ctx, client.UserID().String())
	if err != nil {
		g.failAck(client, frame.Type, apperrors.Wrap(apperrors.CodeDependency, err, "rate limiter unavailable"))
		return
	}
	if !allowed {
		g.countPing(metrics.PingResultRateLimited)
		g.ack(client, Ack{
			Of:    frame.Type,
			Code:  string(apperrors.CodeRateLimit),
			Error: "too many location reports",
		})
		return
	}

	var req locations.ReportRequest
	if err := g.decode(frame.Data, &req); err != nil {
		g.countPing(metrics.PingResultRejected)
		g.failAck(client, frame.Type, err)
		return
	}
	req.ClientIP = client.RemoteIP()

	result, err := g.loc.Report(ctx, client.UserID(), req)
	if err != nil {
		g.countPing(metrics.PingResultRejected)
		g.failAck(client, frame.Type, err)
		return
	}

	if result.Flagged {
		g.countPing(metrics.PingResultFlagged)
	} else {
		g.countPing(metrics.PingResultAccepted)
	}
	g.ack(client, Ack{Of: frame.Type, Success: true, Result: result})

	update := LocationUpdate{
		TaskID:     req.TaskID,
		AgentID:    client.UserID(),
		Latitude:   result.Snapshot.Latitude,
		Longitude:  result.Snapshot.Longitude,
		Heading:    result.Snapshot.Heading,
		Speed:      result.Snapshot.Speed,
		Accuracy:   result.Snapshot.Accuracy,
		Flagged:    result.Flagged,
		ServerTime: result.Snapshot.RecordedAt.UTC().Format(time.RFC3339Nano),
	}
	outbound, err := marshalFrame(TypeLocationUpdate, update)
	if err != nil {
		g.logg.Error(ctx, "marshalling location update", err)
		return
	}
	g.hub.Broadcast(req.TaskID, outbound)
}

func (g *Gateway) handleSubscribe(ctx context.Context, client *Client, frame Frame) {
	var payload SubscribePayload
	if err := g.decode(frame.Data, &payload); err != nil {
		g.failAck(client, frame.Type, err)
		return
	}
	if payload.TaskID == uuid.Nil {
		g.failAck(client, frame.Type, apperrors.New(apperrors.CodeValidation, "task_id is required"))
		return
	}

	g.hub.Subscribe(payload.TaskID, client)

	// A snapshot in the ack means a new observer sees current state without
	// waiting for the next ping.
	snapshot, err := g.loc.Latest(ctx, payload.TaskID)
	if err != nil {
		g.logg.Error(ctx, "reading location snapshot", err)
	}
	g.ack(client, Ack{Of: frame.Type, Success: true, Snapshot: snapshot})
}

func (g *Gateway) handleUnsubscribe(client *Client, frame Frame) {
	var payload SubscribePayload
	if err := g.decode(frame.Data, &payload); err != nil {
		g.failAck(client, frame.Type, err)
		return
	}
	g.hub.Unsubscribe(payload.TaskID, client)
	g.ack(client, Ack{Of: frame.Type, Success: true})
}

// disconnect tears down all per-connection state: room membership, limiter
// state, and metrics.
func (g *Gateway) disconnect(ctx context.Context, client *Client) {
	client.shutdown()
	g.hub.Drop(client)
	if err := g.limiter.Forget(ctx, client.UserID().String()); err != nil {
		g.logg.Error(ctx, "releasing rate limit state", err)
	}
	if g.metrics != nil {
		g.metrics.ActiveConnections.Dec()
	}
	_ = client.conn.Close()
	g.logg.Info(ctx, "tracking connection closed")
}

func (g *Gateway) countPing(result string) {
	if g.metrics != nil {
		g.metrics.PingsTotal.WithLabelValues(result).Inc()
	}
}

func (g *Gateway) decode(data json.RawMessage, out any) error {
	if len(data) == 0 {
		return apperrors.New(apperrors.CodeValidation, "missing payload")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, err, "malformed payload")
	}
	if err := g.validate.Struct(out); err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, err, "invalid payload")
	}
	return nil
}

func (g *Gateway) ack(client *Client, ack Ack) {
	frame, err := marshalFrame(TypeAck, ack)
	if err != nil {
		return
	}
	client.trySend(frame)
}

func (g *Gateway) failAck(client *Client, of string, err error) {
	code := apperrors.CodeInternal
	message := "internal error"
	if appErr := apperrors.As(err); appErr != nil {
		code = appErr.Code()
		message = appErr.Message()
	}
	g.ack(client, Ack{Of: of, Code: string(code), Error: message})
}

// remoteIP resolves the peer address of the handshake request, honoring the
// usual proxy headers the way the HTTP middleware does.
func remoteIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
