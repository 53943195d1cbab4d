package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTrade is the wire-shape fixture served by the httptest backend below.
type fakeTrade struct {
	id    string
	sec   int64
	price string
	size  string
}

// newTradesServer serves the Coinbase-style market-trades endpoint used by
// HTTPSource: GET .../products/{product_id}/ticker?start=&end=&limit=,
// returning at most limit trades within [start,end], newest first, the
// same contract FetchWindow's backward-page-walk relies on.
func newTradesServer(t *testing.T, trades []fakeTrade, pageLimit int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/brokerage/products/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		start, err := strconv.ParseInt(q.Get("start"), 10, 64)
		require.NoError(t, err)
		end, err := strconv.ParseInt(q.Get("end"), 10, 64)
		require.NoError(t, err)

		var matched []fakeTrade
		for _, tr := range trades {
			if tr.sec >= start && tr.sec <= end {
				matched = append(matched, tr)
			}
		}
		sort.Slice(matched, func(i, j int) bool { return matched[i].sec > matched[j].sec })
		if len(matched) > pageLimit {
			matched = matched[:pageLimit]
		}

		type wireTrade struct {
			TradeID   string `json:"trade_id"`
			ProductID string `json:"product_id"`
			Price     string `json:"price"`
			Size      string `json:"size"`
			Time      string `json:"time"`
			Side      string `json:"side"`
		}
		out := make([]wireTrade, 0, len(matched))
		for _, tr := range matched {
			out = append(out, wireTrade{
				TradeID: tr.id,
				Price:   tr.price,
				Size:    tr.size,
				Time:    time.Unix(tr.sec, 0).UTC().Format(time.RFC3339),
				Side:    "BUY",
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"trades": out})
	})
	return httptest.NewServer(mux)
}

func mkFakeTrades(n int) []fakeTrade {
	out := make([]fakeTrade, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fakeTrade{id: fmt.Sprintf("t%d", i), sec: int64(i), price: "100", size: "1"})
	}
	return out
}

func TestFetchWindowWalksMultiplePagesBackward(t *testing.T) {
	trades := mkFakeTrades(6) // t=0..5
	srv := newTradesServer(t, trades, 2)
	defer srv.Close()

	s := NewHTTPSource(srv.URL, "coinbase", 2, time.Millisecond)
	got, err := s.FetchWindow(context.Background(), "ETH-USD", time.Unix(0, 0).UTC(), time.Unix(6, 0).UTC())
	require.NoError(t, err)
	require.Len(t, got, 6)
	for i, tr := range got {
		assert.Equal(t, fmt.Sprintf("t%d", i), tr.TradeID)
		assert.Equal(t, time.Unix(int64(i), 0).UTC(), tr.Timestamp)
	}
}

func TestFetchWindowSinglePageTerminatesImmediately(t *testing.T) {
	trades := mkFakeTrades(3) // t=0..2, well under the page limit
	srv := newTradesServer(t, trades, 1000)
	defer srv.Close()

	s := NewHTTPSource(srv.URL, "coinbase", 1000, time.Millisecond)
	got, err := s.FetchWindow(context.Background(), "ETH-USD", time.Unix(0, 0).UTC(), time.Unix(3, 0).UTC())
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestFetchWindowTooBusyWhenCursorCannotAdvance(t *testing.T) {
	// Two trades sharing the same instant, at the page limit: the cursor
	// can never move earlier than that instant, so the walk must fail
	// with ErrWindowTooBusy rather than loop forever.
	trades := []fakeTrade{
		{id: "a", sec: 5, price: "100", size: "1"},
		{id: "b", sec: 5, price: "101", size: "1"},
	}
	srv := newTradesServer(t, trades, 2)
	defer srv.Close()

	s := NewHTTPSource(srv.URL, "coinbase", 2, time.Millisecond)
	_, err := s.FetchWindow(context.Background(), "ETH-USD", time.Unix(0, 0).UTC(), time.Unix(6, 0).UTC())
	require.ErrorIs(t, err, ErrWindowTooBusy)
}

func TestFetchWindowFiltersToRequestedBounds(t *testing.T) {
	// Sanity check that the final result is clipped to [start,end) even
	// though individual pages re-include boundary instants for safety.
	trades := mkFakeTrades(10)
	srv := newTradesServer(t, trades, 3)
	defer srv.Close()

	s := NewHTTPSource(srv.URL, "coinbase", 3, time.Millisecond)
	got, err := s.FetchWindow(context.Background(), "ETH-USD", time.Unix(2, 0).UTC(), time.Unix(5, 0).UTC())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "t2", got[0].TradeID)
	assert.Equal(t, "t4", got[len(got)-1].TradeID)
}
