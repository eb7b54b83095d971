package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amarcoder01/market-engine/internal/config"
	"github.com/amarcoder01/market-engine/internal/logger"
)

func TestMain(m *testing.M) {
	logger.SetNopLogger()
	m.Run()
}

func chartBody(symbol string, price, previousClose float64, volume int64) string {
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{
		"symbol":%q,
		"regularMarketPrice":%g,
		"chartPreviousClose":%g,
		"regularMarketVolume":%d
	}}]}}`, symbol, price, previousClose, volume)
}

func newTestClient(baseURL string, maxFailures uint32) *Client {
	return NewClient(
		config.FeedConfig{BaseURL: baseURL, Timeout: time.Second},
		config.CircuitBreakerConfig{
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     time.Minute,
			MaxFailures: maxFailures,
		},
	)
}

func TestFetchQuotesParsesChartMeta(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.URL.Path, "/v8/finance/chart/"))
		symbol := strings.TrimPrefix(r.URL.Path, "/v8/finance/chart/")
		fmt.Fprint(w, chartBody(symbol, 150.25, 148.00, 42_000_000))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5)
	quotes, err := client.FetchQuotes(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	quote := quotes[0]
	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, "150.25", quote.Price.String())
	assert.Equal(t, "2.25", quote.Change.String())
	assert.Equal(t, int64(42_000_000), quote.Volume)
	assert.False(t, quote.FetchedAt.IsZero())
}

func TestFetchQuotesPartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/BAD") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		fmt.Fprint(w, chartBody("MSFT", 300, 0, 1000))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5)
	quotes, err := client.FetchQuotes(context.Background(), []string{"MSFT", "BAD"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "MSFT", quotes[0].Symbol)
	// No previous close: change fields stay zero.
	assert.True(t, quotes[0].Change.IsZero())
}

func TestFetchQuotesAllSymbolsFailing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5)
	_, err := client.FetchQuotes(context.Background(), []string{"AAPL", "MSFT"})
	assert.Error(t, err)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2)
	for i := 0; i < 2; i++ {
		_, err := client.FetchQuotes(context.Background(), []string{"AAPL"})
		require.Error(t, err)
	}

	_, err := client.FetchQuotes(context.Background(), []string{"AAPL"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
