package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/showtime-ledger/pkg/response"
	"github.com/redis/go-redis/v9"
)

const (
	// IdempotencyKeyHeader carries the client's key for a reservation attempt
	IdempotencyKeyHeader = "X-Idempotency-Key"
	// DefaultIdempotencyTTL covers client retries of a reservation until its lock would expire
	DefaultIdempotencyTTL = 10 * time.Minute
	// IdempotencyKeyPrefix namespaces replay records in Redis
	IdempotencyKeyPrefix = "idempotency:"
)

// IdempotencyStatus is the lifecycle of a replay record
type IdempotencyStatus string

const (
	StatusProcessing IdempotencyStatus = "processing"
	StatusCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord is what Redis holds for one key
type IdempotencyRecord struct {
	Status IdempotencyStatus `json:"status"`
	// Fingerprint hashes method, path, user and body of the first request
	Fingerprint  string     `json:"fingerprint"`
	ResponseCode int        `json:"response_code,omitempty"`
	ResponseBody string     `json:"response_body,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// RedisClient is the subset of go-redis the middleware needs
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// IdempotencyConfig configures IdempotencyMiddleware
type IdempotencyConfig struct {
	Redis RedisClient
	// TTL keeps completed responses replayable
	TTL time.Duration
	// ProcessingTTL bounds how long an unfinished request blocks its key
	ProcessingTTL time.Duration
}

// DefaultIdempotencyConfig returns default configuration
func DefaultIdempotencyConfig(client RedisClient) *IdempotencyConfig {
	return &IdempotencyConfig{
		Redis:         client,
		TTL:           DefaultIdempotencyTTL,
		ProcessingTTL: 60 * time.Second,
	}
}

// IdempotencyMiddleware makes a reservation retry with the same key return the
// first response instead of holding seats twice. Keys are scoped per user.
// Redis errors fail open. 5xx responses are not stored.
func IdempotencyMiddleware(config *IdempotencyConfig) gin.HandlerFunc {
	ttl := config.TTL
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	processingTTL := config.ProcessingTTL
	if processingTTL <= 0 {
		processingTTL = 60 * time.Second
	}

	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			response.Abort(c, http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", IdempotencyKeyHeader+" header is required")
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		userID, _ := GetUserID(c)
		redisKey := IdempotencyKeyPrefix + key
		if userID != "" {
			redisKey = IdempotencyKeyPrefix + userID + ":" + key
		}
		fingerprint := fingerprintRequest(c.Request.Method, c.Request.URL.Path, userID, body)

		ctx := c.Request.Context()

		existing, err := loadRecord(ctx, config.Redis, redisKey)
		if err != nil && !errors.Is(err, redis.Nil) {
			c.Next()
			return
		}
		if existing == nil {
			record := &IdempotencyRecord{
				Status:      StatusProcessing,
				Fingerprint: fingerprint,
				CreatedAt:   time.Now(),
			}
			if claimRecord(ctx, config.Redis, redisKey, record, processingTTL) {
				runAndStore(c, config.Redis, redisKey, record, ttl)
				return
			}
			// lost the race to a concurrent request with the same key
			existing, _ = loadRecord(ctx, config.Redis, redisKey)
			if existing == nil {
				c.Next()
				return
			}
		}

		replay(c, existing, fingerprint)
	}
}

// replay answers a request whose key already has a record
func replay(c *gin.Context, record *IdempotencyRecord, fingerprint string) {
	switch {
	case record.Fingerprint != fingerprint:
		response.Abort(c, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", "Idempotency key already used with different request")
	case record.Status == StatusProcessing:
		response.Abort(c, http.StatusConflict, "REQUEST_IN_PROGRESS", "A request with this idempotency key is already being processed")
	default:
		c.Data(record.ResponseCode, "application/json", []byte(record.ResponseBody))
		c.Abort()
	}
}

// runAndStore runs the handler chain and stores its response under redisKey
func runAndStore(c *gin.Context, client RedisClient, redisKey string, record *IdempotencyRecord, ttl time.Duration) {
	rw := &capturingWriter{ResponseWriter: c.Writer, status: http.StatusOK}
	c.Writer = rw

	c.Next()

	ctx := c.Request.Context()
	if rw.status >= http.StatusInternalServerError {
		_ = client.Del(ctx, redisKey).Err()
		return
	}

	now := time.Now()
	record.Status = StatusCompleted
	record.ResponseCode = rw.status
	record.ResponseBody = rw.body.String()
	record.CompletedAt = &now

	if data, err := json.Marshal(record); err == nil {
		_ = client.Set(ctx, redisKey, string(data), ttl).Err()
	}
}

// capturingWriter tees the response body so it can be replayed
type capturingWriter struct {
	gin.ResponseWriter
	body   bytes.Buffer
	status int
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func fingerprintRequest(method, path, userID string, body []byte) string {
	h := sha256.New()
	for _, part := range [][]byte{[]byte(method), []byte(path), []byte(userID), body} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func loadRecord(ctx context.Context, client RedisClient, key string) (*IdempotencyRecord, error) {
	raw, err := client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	var record IdempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func claimRecord(ctx context.Context, client RedisClient, key string, record *IdempotencyRecord, ttl time.Duration) bool {
	data, err := json.Marshal(record)
	if err != nil {
		return false
	}
	ok, err := client.SetNX(ctx, key, string(data), ttl).Result()
	return err == nil && ok
}
