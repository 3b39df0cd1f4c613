package currency

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/costwatch/costwatch/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRateServer(t *testing.T, jpyRate float64, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		fmt.Fprintf(w, `{"result":"success","rates":{"JPY":%v,"EUR":0.9}}`, jpyRate)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCurrencyService_Convert(t *testing.T) {
	tests := []struct {
		name    string
		amount  float64
		jpyRate float64
		want    string
	}{
		{
			name:    "formats with yen symbol and grouping",
			amount:  100,
			jpyRate: 150,
			want:    "¥15,000",
		},
		{
			name:    "rounds to whole yen",
			amount:  1.004,
			jpyRate: 150,
			want:    "¥151",
		},
		{
			name:    "small amount",
			amount:  0.002,
			jpyRate: 150,
			want:    "¥0",
		},
		{
			name:    "large amount keeps grouping",
			amount:  8230.45,
			jpyRate: 150,
			want:    "¥1,234,568",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newRateServer(t, tt.jpyRate, nil)
			service := NewCurrencyService(CurrencyServiceOpts{Endpoint: server.URL, RequestsPerSecond: 1000})

			got, err := service.Convert(context.Background(), tt.amount, "USD")

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCurrencyService_Convert_CachesRatePerUnit(t *testing.T) {
	var hits atomic.Int64
	server := newRateServer(t, 150, &hits)
	service := NewCurrencyService(CurrencyServiceOpts{Endpoint: server.URL, RequestsPerSecond: 1000})

	for i := 0; i < 5; i++ {
		_, err := service.Convert(context.Background(), float64(i+1), "USD")
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), hits.Load(), "repeat conversions of the same unit share one rate fetch")
}

func TestCurrencyService_Convert_UnsupportedUnit(t *testing.T) {
	server := newRateServer(t, 150, nil)
	service := NewCurrencyService(CurrencyServiceOpts{Endpoint: server.URL, RequestsPerSecond: 1000})

	_, err := service.Convert(context.Background(), 100, "not-a-code")

	assert.ErrorIs(t, err, types.ErrConversionFailed)
}

func TestCurrencyService_Convert_MissingTargetRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":"success","rates":{"EUR":0.9}}`)
	}))
	t.Cleanup(server.Close)
	service := NewCurrencyService(CurrencyServiceOpts{Endpoint: server.URL, RequestsPerSecond: 1000})

	_, err := service.Convert(context.Background(), 100, "USD")

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConversionFailed)
	assert.Contains(t, err.Error(), "no JPY rate")
}

func TestCurrencyService_Convert_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)
	service := NewCurrencyService(CurrencyServiceOpts{Endpoint: server.URL, RequestsPerSecond: 1000})

	_, err := service.Convert(context.Background(), 100, "USD")

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConversionFailed)
	assert.Contains(t, err.Error(), "status 429")
}

func TestCurrencyService_Convert_RequestsExpectedPath(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"result":"success","rates":{"JPY":150}}`)
	}))
	t.Cleanup(server.Close)
	service := NewCurrencyService(CurrencyServiceOpts{Endpoint: server.URL, RequestsPerSecond: 1000})

	_, err := service.Convert(context.Background(), 1, "EUR")

	require.NoError(t, err)
	assert.Equal(t, "/v6/latest/EUR", gotPath)
}
