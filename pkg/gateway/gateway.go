package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/agubarev/aegis/pkg/alert"
	"github.com/agubarev/aegis/pkg/security/session"
	"github.com/agubarev/aegis/pkg/util"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultHeartbeat is the interval of keep-alive frames on idle streams
const DefaultHeartbeat = 15 * time.Second

// errors
var (
	ErrNilAuthority    = errors.New("session authority is nil")
	ErrNilBus          = errors.New("alert bus is nil")
	ErrMissingToken    = errors.New("session token is missing")
	ErrStreamingFailed = errors.New("response writer does not support streaming")
)

// Gateway admits authenticated dashboard clients to the alert stream
type Gateway struct {
	authority *session.Authority
	bus       *alert.Bus
	bound     int
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewGateway initializes a realtime gateway; bound is the per-client queue bound
func NewGateway(authority *session.Authority, bus *alert.Bus, bound int) (*Gateway, error) {
	if authority == nil {
		return nil, ErrNilAuthority
	}

	if bus == nil {
		return nil, ErrNilBus
	}

	if bound <= 0 {
		bound = alert.DefaultQueueBound
	}

	g := &Gateway{
		authority: authority,
		bus:       bus,
		bound:     bound,
		heartbeat: DefaultHeartbeat,
	}

	return g, nil
}

// SetLogger assigns a logger to this gateway
func (g *Gateway) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[gateway]")
	}

	g.logger = logger

	return nil
}

// Logger returns own logger
func (g *Gateway) Logger() *zap.Logger {
	if g.logger == nil {
		g.logger = util.FallbackLogger(nil, "[gateway]")
	}

	return g.logger
}

// SetHeartbeat sets the keep-alive interval
func (g *Gateway) SetHeartbeat(d time.Duration) {
	if d > 0 {
		g.heartbeat = d
	}
}

// FilterFor scopes what an identity is allowed to see
func FilterFor(ident session.Identity) alert.Filter {
	f := alert.Filter{AccountID: ident.AccountID}

	if !ident.Role.IsOperator() {
		f.DeviceID = ident.DeviceID
	}

	return f
}

// Connect validates a session token and subscribes its holder to the
// alerts it is authorized to see
func (g *Gateway) Connect(ctx context.Context, token string) (*alert.Subscription, session.Claims, error) {
	if token == "" {
		return nil, session.Claims{}, ErrMissingToken
	}

	claims, err := g.authority.Validate(token)
	if err != nil {
		g.Logger().Warn("stream connection rejected", zap.Error(err))
		return nil, claims, err
	}

	sub, err := g.bus.Subscribe(FilterFor(claims.Identity), g.bound)
	if err != nil {
		return nil, claims, err
	}

	g.Logger().Info(
		"stream connected",
		zap.String("identity_id", claims.Identity.ID.String()),
		zap.String("role", string(claims.Identity.Role)),
		zap.String("device_id", identityDevice(claims.Identity)),
	)

	return sub, claims, nil
}

// TokenFromRequest extracts a session token from the Authorization
// header or, for browser event sources, the access_token query parameter
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if parts := strings.SplitN(h, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}

		return ""
	}

	return r.URL.Query().Get("access_token")
}

// ServeHTTP streams alerts as server-sent events until the client goes away
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		util.WriteResponseErrorTo(w, "streaming_unsupported", ErrStreamingFailed, http.StatusInternalServerError)
		return
	}

	sub, claims, err := g.Connect(r.Context(), TokenFromRequest(r))
	if err != nil {
		switch err {
		case ErrMissingToken, session.ErrTokenInvalid, session.ErrTokenExpired:
			util.WriteResponseErrorTo(w, "unauthorized", err, http.StatusUnauthorized)
		default:
			util.WriteResponseErrorTo(w, "stream_unavailable", err, http.StatusServiceUnavailable)
		}

		return
	}

	defer sub.Close()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	if err = g.stream(r.Context(), w, flusher, sub); err != nil {
		g.Logger().Debug(
			"stream closed",
			zap.String("identity_id", claims.Identity.ID.String()),
			zap.Uint64("dropped", sub.Dropped()),
			zap.Error(err),
		)
	}
}

func (g *Gateway) stream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sub *alert.Subscription) error {
	ticker := time.NewTicker(g.heartbeat)
	defer ticker.Stop()

	for {
		for _, a := range sub.Drain() {
			if err := writeAlert(w, a); err != nil {
				return err
			}
		}

		flusher.Flush()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.Done():
			return alert.ErrSubscriptionClosed
		case <-sub.Notify():
		case <-ticker.C:
			if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
				return err
			}
		}
	}
}

func writeAlert(w http.ResponseWriter, a alert.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "failed to encode alert")
	}

	frame := make([]byte, 0, len(payload)+64)
	frame = append(frame, "id: "...)
	frame = append(frame, a.ID.String()...)
	frame = append(frame, "\nevent: alert\ndata: "...)
	frame = append(frame, payload...)
	frame = append(frame, "\n\n"...)

	_, err = w.Write(frame)

	return err
}

var _ http.Handler = (*Gateway)(nil)

func identityDevice(ident session.Identity) string {
	if ident.DeviceID == uuid.Nil {
		return ""
	}

	return ident.DeviceID.String()
}
