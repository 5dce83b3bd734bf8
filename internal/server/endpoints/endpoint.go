package endpoints

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agubarev/aegis/internal/core"
	"github.com/agubarev/aegis/pkg/util"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxRequestSize limits every request body
const MaxRequestSize = 1 << 20

type contextKey string

// context keys
const (
	CKRequestID contextKey = "request_id"
	CKClaims    contextKey = "claims"
)

// Endpoint wraps a handler into a uniform JSON response
type Endpoint struct {
	core    *core.Core
	name    string
	handler Handler
}

// Handler represents a custom handler
type Handler func(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error)

// Response is the envelope of every API response
type Response struct {
	RequestID     uuid.UUID       `json:"request_id"`
	Result        interface{}     `json:"result,omitempty"`
	Error         *util.HTTPError `json:"error,omitempty"`
	ExecutionTime time.Duration   `json:"exec_time"`
}

// NewEndpoint initializes an endpoint
func NewEndpoint(name string, c *core.Core, h Handler) Endpoint {
	if c == nil {
		panic(core.ErrNilCore)
	}

	// basic validation
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		panic(errors.New("empty endpoint name"))
	}

	return Endpoint{
		core:    c,
		name:    name,
		handler: h,
	}
}

func (e Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// generating request ID
	requestID := uuid.New()

	// injecting request ID into the context
	ctx := context.WithValue(r.Context(), CKRequestID, requestID)

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestSize)

	//---------------------------------------------------------------------------
	// processing request
	//---------------------------------------------------------------------------
	start := time.Now()

	// executing handler
	result, code, err := e.handler(ctx, e.core, w, r.WithContext(ctx))

	// initializing response
	response := Response{
		RequestID:     requestID,
		Result:        result,
		ExecutionTime: time.Since(start),
	}

	if err != nil {
		response.Result = nil
		response.Error = &util.HTTPError{
			Key:     e.name,
			Message: err.Error(),
			Code:    code,
		}

		if code >= http.StatusInternalServerError {
			e.core.Logger().Error(
				"request failed",
				zap.String("endpoint", e.name),
				zap.String("request_id", requestID.String()),
				zap.Error(err),
			)
		}
	}

	// marshaling handler's result
	payload, err := json.Marshal(response)
	if err != nil {
		http.Error(
			w,
			errors.Wrap(err, "failed to marshal server response").Error(),
			http.StatusInternalServerError,
		)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.Header().Set("X-Request-ID", requestID.String())
	w.WriteHeader(code)
	w.Write(payload)
}

// decode unmarshals a JSON request body into dest
func decode(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return errors.Wrap(ErrInvalidPayload, err.Error())
	}

	return nil
}
