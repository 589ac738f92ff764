package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const feedBody = `{
	"products": [
		{"id": 1, "title": "Essence Mascara", "sku": "RCH45Q1A", "price": 9.99, "stock": 5,
		 "description": "Lengthening mascara", "images": ["https://cdn.example/1.png"], "thumbnail": "https://cdn.example/1t.png"},
		{"id": 2, "title": "Eyeshadow", "sku": "MVCFH27F", "price": 19.99, "stock": 44, "images": [], "thumbnail": "https://cdn.example/2t.png"}
	],
	"total": 2, "skip": 0, "limit": 2
}`

func TestFetchDecodesFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	products, err := client.Fetch(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, products, 2)

	require.Equal(t, "RCH45Q1A", products[0].SKU)
	require.Equal(t, "9.99", products[0].Price.StringFixed(2))
	require.EqualValues(t, 5, products[0].Stock)
	require.Equal(t, "https://cdn.example/1.png", products[0].Image())
	require.Equal(t, "https://cdn.example/2t.png", products[1].Image(), "thumbnail when gallery is empty")
}

func TestFetchReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Fetch(context.Background(), "")
	require.ErrorContains(t, err, "status 502")
}

func TestFetchOverridesSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/alt", r.URL.Path)
		_, _ = w.Write([]byte(`{"products":[]}`))
	}))
	defer srv.Close()

	client := NewClient("http://127.0.0.1:1/unused", time.Second)
	products, err := client.Fetch(context.Background(), srv.URL+"/alt")
	require.NoError(t, err)
	require.Empty(t, products)
	require.Equal(t, DefaultSourceURL, NewClient("", 0).SourceURL())
}
