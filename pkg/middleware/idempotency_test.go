package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// fakeRedis is an in-memory RedisClient for middleware tests
type fakeRedis struct {
	store map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{store: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.store[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.store[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if _, ok := f.store[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.store[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var deleted int64
	for _, key := range keys {
		if _, ok := f.store[key]; ok {
			delete(f.store, key)
			deleted++
		}
	}
	return redis.NewIntResult(deleted, nil)
}

func setupIdempotencyRouter(rc RedisClient, handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/bookings", Idempotency(DefaultIdempotencyConfig(rc)), handler)
	return router
}

func postWithKey(router *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysCompletedResponse(t *testing.T) {
	var calls int
	router := setupIdempotencyRouter(newFakeRedis(), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"booking_id": "booking-1"})
	})

	first := postWithKey(router, "key-1", `{"event_id":"event-1","quantity":1}`)
	assert.Equal(t, http.StatusCreated, first.Code)

	second := postWithKey(router, "key-1", `{"event_id":"event-1","quantity":1}`)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls, "replay must not re-execute the handler")
}

func TestIdempotency_ServerFailureStaysRetryable(t *testing.T) {
	var calls int
	router := setupIdempotencyRouter(newFakeRedis(), func(c *gin.Context) {
		calls++
		if calls == 1 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "contended"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"booking_id": "booking-1"})
	})

	first := postWithKey(router, "key-1", `{"event_id":"event-1","quantity":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, first.Code)

	// Retrying with the same key must attempt the booking again, not
	// replay the transient rejection
	second := postWithKey(router, "key-1", `{"event_id":"event-1","quantity":1}`)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotency_KeyReuseWithDifferentPayload(t *testing.T) {
	router := setupIdempotencyRouter(newFakeRedis(), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"booking_id": "booking-1"})
	})

	first := postWithKey(router, "key-1", `{"event_id":"event-1","quantity":1}`)
	assert.Equal(t, http.StatusCreated, first.Code)

	second := postWithKey(router, "key-1", `{"event_id":"event-1","quantity":5}`)
	assert.Equal(t, http.StatusUnprocessableEntity, second.Code)
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	var calls int
	router := setupIdempotencyRouter(newFakeRedis(), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"booking_id": "booking-1"})
	})

	postWithKey(router, "", `{"event_id":"event-1","quantity":1}`)
	postWithKey(router, "", `{"event_id":"event-1","quantity":1}`)
	assert.Equal(t, 2, calls)
}
