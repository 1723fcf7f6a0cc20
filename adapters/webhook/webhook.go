// Package webhook receives notifications pushed over HTTP and publishes them to a downstream endpoint.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	"github.com/next-trace/scg-planning-notify/contract/notify"
)

const (
	// DefaultPath receives pushed notifications.
	DefaultPath = "/notifications"
	// HeaderRequestID carries the request id on requests and responses.
	HeaderRequestID = "X-Request-ID"
	// HeaderTopic carries PublishOptions.TopicOverride. The ingress uses it as the message topic.
	HeaderTopic = "X-Notify-Topic"
	// MaxBodyBytes bounds a pushed envelope.
	MaxBodyBytes = 1 << 20

	issuer      = "scg-planning-notify"
	ctxKeySubj  = "token_subject"
	ctxKeyReqID = "request_id"
)

// Config configures the webhook transport.
type Config struct {
	// Addr is the listen address for Serve, e.g. ":8080".
	Addr string
	// Path receives POSTed envelopes. Defaults to DefaultPath.
	Path string
	// Secret enables HS256 bearer token checks on ingress and signs outbound publishes.
	Secret string
	// TargetURL receives every envelope on Publish. Empty disables publishing.
	// PublishOptions.TopicOverride never changes it; the topic travels in HeaderTopic.
	TargetURL string
	// TokenTTL is the lifetime of tokens signed for Publish. Defaults to five minutes.
	TokenTTL time.Duration
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithPropagator injects trace context into outbound requests.
func WithPropagator(p notify.HeaderPropagator) Option {
	return func(a *Adapter) {
		if p != nil {
			a.prop = p
		}
	}
}

// WithHTTPClient replaces the client used by Publish.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		if c != nil {
			a.client = c
		}
	}
}

// Adapter is a notify.Transport over HTTP: the server pushes envelopes to an ingress endpoint,
// and Publish POSTs envelopes to a downstream endpoint.
type Adapter struct {
	cfg    Config
	engine *gin.Engine
	client *http.Client
	prop   notify.HeaderPropagator
	logger *slog.Logger

	mu    sync.RWMutex
	recvs map[int]notify.Receiver
	next  int
}

var _ notify.Transport = (*Adapter)(nil)

// New builds the ingress router.
func New(cfg Config, opts ...Option) *Adapter {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}

	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 5 * time.Minute
	}

	a := &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		prop:   notify.NopHeaderPropagator{},
		logger: slog.Default(),
		recvs:  make(map[int]notify.Receiver),
	}

	for _, o := range opts {
		o(a)
	}

	e := gin.New()
	e.Use(gin.Recovery(), requestID())

	e.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	ingress := e.Group("")
	if cfg.Secret != "" {
		ingress.Use(bearerAuth(cfg.Secret))
	}

	ingress.POST(cfg.Path, a.receive)

	a.engine = e

	return a
}

// Handler exposes the ingress router, e.g. to mount it or drive it from httptest.
func (a *Adapter) Handler() http.Handler { return a.engine }

// Engine exposes the gin engine so callers can add routes such as /metrics.
func (a *Adapter) Engine() *gin.Engine { return a.engine }

// Serve listens on cfg.Addr until ctx is done, then shuts down gracefully.
func (a *Adapter) Serve(ctx context.Context) error {
	if a.cfg.Addr == "" {
		return fmt.Errorf("webhook serve: listen address required: %w", nerr.ErrTransportNotConfigured)
	}

	srv := &http.Server{Addr: a.cfg.Addr, Handler: a.engine, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)

	go func() { errc <- srv.ListenAndServe() }()

	a.logger.InfoContext(ctx, "webhook listening", "addr", a.cfg.Addr, "path", a.cfg.Path)

	select {
	case err := <-errc:
		return fmt.Errorf("webhook serve: %w", errors.Join(nerr.ErrSubscribeFailed, err))
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	}
}

// Subscribe registers recv for pushed notifications.
func (a *Adapter) Subscribe(ctx context.Context, recv notify.Receiver) (notify.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if recv == nil {
		return nil, fmt.Errorf("webhook subscribe: nil receiver: %w", nerr.ErrSubscribeFailed)
	}

	a.mu.Lock()
	id := a.next
	a.next++
	a.recvs[id] = recv
	a.mu.Unlock()

	return notify.SubscriptionFunc(func() error {
		a.mu.Lock()
		delete(a.recvs, id)
		a.mu.Unlock()

		return nil
	}), nil
}

// Publish POSTs the envelope to cfg.TargetURL, signed with a bearer token when a secret is set.
// A topic override is sent as HeaderTopic.
func (a *Adapter) Publish(ctx context.Context, n notify.Notification, opts notify.PublishOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.cfg.TargetURL == "" {
		return fmt.Errorf("webhook publish: %w", errors.Join(nerr.ErrPublishFailed, nerr.ErrTransportNotConfigured))
	}

	body, err := notify.Encode(n)
	if err != nil {
		return fmt.Errorf("webhook publish serialize: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TargetURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook publish: %w", errors.Join(nerr.ErrPublishFailed, err))
	}

	headers := make(map[string]string, len(opts.Headers)+2)
	for k, v := range opts.Headers {
		headers[k] = v
	}

	if opts.Key != "" {
		headers["key"] = opts.Key
	}

	a.prop.Inject(ctx, headers)

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderRequestID, uuid.NewString())

	if opts.TopicOverride != "" {
		req.Header.Set(HeaderTopic, opts.TopicOverride)
	}

	if a.cfg.Secret != "" {
		tok, err := GenerateToken(a.cfg.Secret, "publisher", a.cfg.TokenTTL)
		if err != nil {
			return fmt.Errorf("webhook publish sign: %w", errors.Join(nerr.ErrPublishFailed, err))
		}

		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("webhook publish: %w", errors.Join(nerr.ErrPublishFailed, err))
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook publish: status %d: %w", resp.StatusCode, nerr.ErrPublishFailed)
	}

	return nil
}

func (a *Adapter) receive(c *gin.Context) {
	reqID := c.GetString(ctxKeyReqID)

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodyBytes+1))
	if err != nil || len(data) > MaxBodyBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large or unreadable", "request_id": reqID})
		return
	}

	if _, err := notify.Decode(data); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "request_id": reqID})
		return
	}

	headers := make(map[string]string, len(c.Request.Header)+2)
	for k := range c.Request.Header {
		if k == "Authorization" {
			continue
		}

		headers[strings.ToLower(k)] = c.Request.Header.Get(k)
	}

	headers["request_id"] = reqID
	if subj := c.GetString(ctxKeySubj); subj != "" {
		headers["token_subject"] = subj
	}

	a.mu.RLock()
	recvs := make([]notify.Receiver, 0, len(a.recvs))
	for i := 0; i < a.next; i++ {
		if r, ok := a.recvs[i]; ok {
			recvs = append(recvs, r)
		}
	}
	a.mu.RUnlock()

	if len(recvs) == 0 {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "no subscriber", "request_id": reqID})
		return
	}

	ctx := c.Request.Context()
	topic := c.FullPath()
	if t := c.GetHeader(HeaderTopic); t != "" {
		topic = t
	}

	msg := notify.Message{Topic: topic, Data: data, Headers: headers}

	var errs []error
	for _, r := range recvs {
		errs = append(errs, r(ctx, msg))
	}

	if err := errors.Join(errs...); err != nil {
		a.logger.WarnContext(ctx, "webhook receive", "request_id", reqID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "handler failed", "request_id": reqID})

		return
	}

	c.JSON(http.StatusAccepted, gin.H{"request_id": reqID})
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(ctxKeyReqID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func bearerAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
			return
		}

		claims := &jwt.RegisteredClaims{}

		token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ctxKeySubj, claims.Subject)
		c.Next()
	}
}

// GenerateToken signs an HS256 token for subject valid for ttl.
func GenerateToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}
