package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uoa-systems/flowwatch/internal/models"
	"github.com/uoa-systems/flowwatch/internal/position"
)

type fakeManager struct {
	active []*models.Position
	stats  position.DailyStats
}

func (f *fakeManager) Active() []*models.Position { return f.active }
func (f *fakeManager) Stats() position.DailyStats { return f.stats }

type fakeAggregator struct {
	symbols      []string
	dropped      map[string]int64
	softCapDrops map[string]int64
}

func (f *fakeAggregator) ActiveSymbols() []string             { return f.symbols }
func (f *fakeAggregator) DroppedCount(symbol string) int64    { return f.dropped[symbol] }
func (f *fakeAggregator) SoftCapDropCount(symbol string) int64 { return f.softCapDrops[symbol] }

func newTestPosition(symbol string) *models.Position {
	return &models.Position{
		Symbol:     symbol,
		EntryTime:  time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC),
		EntryPrice: 100.50,
		Shares:     42,
		Signal:     models.SignalRef{Score: 12, Sector: "Technology"},
		SM:         models.NewStateMachine(),
	}
}

func TestHandlePositionsReturnsPerAccountViews(t *testing.T) {
	acctA := &fakeManager{active: []*models.Position{newTestPosition("AAPL")}}
	acctB := &fakeManager{}
	srv := New(Config{Addr: ":0"}, []Account{
		{Name: "A", Manager: acctA},
		{Name: "B", Manager: acctB},
	}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]PositionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body["A"], 1)
	assert.Equal(t, "AAPL", body["A"][0].Symbol)
	assert.Equal(t, "opening", body["A"][0].State)
	assert.Equal(t, 12, body["A"][0].Score)
	assert.Empty(t, body["B"])
}

func TestHandleStatsSumsAggregatorAcrossSymbols(t *testing.T) {
	acctA := &fakeManager{stats: position.DailyStats{Opened: 3, Closed: 1}}
	agg := &fakeAggregator{
		symbols:      []string{"AAPL", "TSLA"},
		dropped:      map[string]int64{"AAPL": 2, "TSLA": 5},
		softCapDrops: map[string]int64{"AAPL": 1},
	}
	srv := New(Config{Addr: ":0"}, []Account{{Name: "A", Manager: acctA}}, agg, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(7), body.DroppedTrades)
	assert.Equal(t, int64(1), body.SoftCapDrops)
	require.Len(t, body.Accounts, 1)
	assert.Equal(t, 3, body.Accounts[0].OpenedToday)
	assert.Equal(t, 1, body.Accounts[0].ClosedToday)
}

func TestHealthEndpointIsAlwaysPublic(t *testing.T) {
	srv := New(Config{Addr: ":0", AuthToken: "secret"}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	srv := New(Config{Addr: ":0", AuthToken: "secret"}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareAcceptsHeaderToken(t *testing.T) {
	srv := New(Config{Addr: ":0", AuthToken: "secret"}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	req.Header.Set("X-Auth-Token", "secret")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareAcceptsQueryToken(t *testing.T) {
	srv := New(Config{Addr: ":0", AuthToken: "secret"}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/positions?token=secret", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
