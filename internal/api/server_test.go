package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shorelinehq/courier/internal/config"
	"github.com/shorelinehq/courier/internal/dedup"
	"github.com/shorelinehq/courier/internal/models"
	"github.com/shorelinehq/courier/internal/queue"
	"github.com/shorelinehq/courier/internal/router"
	"github.com/shorelinehq/courier/internal/storage"
	"github.com/shorelinehq/courier/internal/tracing"
)

type memCache struct {
	entries map[string]bool
}

func (c *memCache) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if c.entries[key] {
		return false, nil
	}
	c.entries[key] = true
	return true, nil
}

type memBroker struct {
	published int
}

func (b *memBroker) Publish(ctx context.Context, q string, h queue.Headers, body []byte) error {
	b.published++
	return nil
}

func (b *memBroker) Consume(ctx context.Context, q string) (*queue.Delivery, error) { return nil, nil }
func (b *memBroker) Ack(ctx context.Context, id int64) error                        { return nil }
func (b *memBroker) Reject(ctx context.Context, id int64, requeue bool) error       { return nil }
func (b *memBroker) Depth(ctx context.Context, q string) (int64, error)             { return 0, nil }
func (b *memBroker) Migrate(ctx context.Context) error                              { return nil }
func (b *memBroker) Close() error                                                   { return nil }

type memStore struct {
	records map[string]*models.DeliveryRecord
}

func (s *memStore) UpsertDeliveryRecord(ctx context.Context, rec *models.DeliveryRecord) error {
	cp := *rec
	s.records[rec.MessageID] = &cp
	return nil
}

func (s *memStore) GetDeliveryRecord(ctx context.Context, id string) (*models.DeliveryRecord, error) {
	return s.records[id], nil
}

func (s *memStore) ListDeliveryRecords(ctx context.Context, f storage.RecordFilter) ([]models.DeliveryRecord, error) {
	var out []models.DeliveryRecord
	for _, rec := range s.records {
		if f.TraceID != "" && rec.TraceID != f.TraceID {
			continue
		}
		if f.Channel != "" && rec.Channel != f.Channel {
			continue
		}
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (s *memStore) GetStats(ctx context.Context) (*storage.Stats, error) {
	return &storage.Stats{Total: int64(len(s.records)), ByChannel: map[string]int64{}}, nil
}

func (s *memStore) Migrate(ctx context.Context) error { return nil }
func (s *memStore) Close() error                      { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, topic, key string, value []byte) error { return nil }

func newTestServer(t *testing.T) (*Server, *memStore, *memBroker) {
	t.Helper()
	store := &memStore{records: map[string]*models.DeliveryRecord{}}
	broker := &memBroker{}
	gate := dedup.NewGate(&memCache{entries: map[string]bool{}}, 24*time.Hour, dedup.FailOpen, zerolog.Nop())
	tracer := tracing.NewCorrelator("courier-test", nopPublisher{}, zerolog.Nop())
	rt := router.New(gate, broker, store, tracer, 3, zerolog.Nop())
	return NewServer(config.ServerConfig{}, rt, store, broker, zerolog.Nop()), store, broker
}

func postMessage(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestSend_ValidMessageAccepted(t *testing.T) {
	srv, store, broker := newTestServer(t)

	rr := postMessage(t, srv.Handler(), `{"channel":"email","recipient":"a@b.com","subject":"Hi","body":"x"}`)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	var resp routeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.MessageID)
	assert.NotEmpty(t, resp.TraceID)
	assert.Equal(t, "Message routed to queue", resp.Message)

	assert.Equal(t, 1, broker.published)
	assert.Contains(t, store.records, resp.MessageID)
}

func TestSend_DuplicateConflict(t *testing.T) {
	srv, _, broker := newTestServer(t)
	body := `{"channel":"email","recipient":"a@b.com","subject":"Hi","body":"x"}`

	first := postMessage(t, srv.Handler(), body)
	require.Equal(t, http.StatusAccepted, first.Code)

	second := postMessage(t, srv.Handler(), body)
	assert.Equal(t, http.StatusConflict, second.Code)

	var resp routeResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Empty(t, resp.MessageID)
	assert.NotEmpty(t, resp.TraceID)
	assert.Equal(t, "Duplicate message detected", resp.Message)

	assert.Equal(t, 1, broker.published, "the duplicate must not be enqueued")
}

func TestSend_ValidationFailure(t *testing.T) {
	srv, _, broker := newTestServer(t)

	rr := postMessage(t, srv.Handler(), `{"channel":"sms","recipient":"not-a-phone","body":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var resp routeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Empty(t, resp.MessageID)
	assert.Contains(t, resp.Message, "recipient")

	assert.Equal(t, 0, broker.published)
}

func TestSend_MalformedBody(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := postMessage(t, srv.Handler(), `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetMessage(t *testing.T) {
	srv, store, _ := newTestServer(t)
	now := time.Now().UTC()
	store.records["msg_1"] = &models.DeliveryRecord{
		MessageID: "msg_1",
		TraceID:   "trc_1",
		Channel:   models.ChannelEmail,
		Recipient: "a@b.com",
		Body:      "x",
		Status:    models.StatusDelivered,
		CreatedAt: now,
		UpdatedAt: now,
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages/msg_1", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var rec models.DeliveryRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, models.StatusDelivered, rec.Status)
}

func TestGetMessage_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages/msg_missing", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"courier"`)
}

func TestStats(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "dead_letter_queue")
}
