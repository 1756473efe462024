//go:build !integration

package influx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"budgetPilot/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const csvResponse = `#datatype,string,long,dateTime:RFC3339,string,double,double,double,double,double
#group,false,false,false,true,false,false,false,false,false
#default,_result,,,,,,,,
,result,table,_time,variant_id,impressions,clicks,spend,conversions,revenue
,,0,2025-03-10T08:00:00Z,ad-1,1000,50,10,1,20
,,0,2025-03-10T09:00:00Z,ad-1,900,36,12.5,0,0

`

func TestSnapshots_ParsesPivotedRows(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotQuery = string(body)
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = io.WriteString(w, csvResponse)
	}))
	defer srv.Close()

	src := NewSnapshotSource(Config{URL: srv.URL, Token: "t", Org: "o", Bucket: "metrics"})
	defer src.Close()

	series, err := src.Snapshots(context.Background(), "ad-1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, series, 2)

	assert.Equal(t, time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC), series[0].BucketStart)
	assert.Equal(t, int64(1000), series[0].Impressions)
	assert.Equal(t, int64(50), series[0].Clicks)
	assert.Equal(t, 20.0, series[0].Revenue)
	assert.Equal(t, 12.5, series[1].Spend)
	assert.Contains(t, gotQuery, `r.variant_id == \"ad-1\"`)
}

func TestSnapshots_RejectsUnsafeVariantID(t *testing.T) {
	src := NewSnapshotSource(Config{URL: "http://127.0.0.1:1", Token: "t", Org: "o", Bucket: "b"})
	defer src.Close()

	_, err := src.Snapshots(context.Background(), `ad") |> drop(`, time.Now())
	assert.Error(t, err)
}

func TestWriteBatch_SendsLineProtocol(t *testing.T) {
	var mu sync.Mutex
	var line string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		line = string(body)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	src := NewSnapshotSource(Config{URL: srv.URL, Token: "t", Org: "o", Bucket: "metrics"})
	defer src.Close()

	err := src.WriteBatch(context.Background(), domain.MetricBatch{
		VariantID:   "ad-1",
		BucketStart: time.Unix(1700000000, 0),
		Impressions: 100,
		Clicks:      4,
		Spend:       2.5,
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.HasPrefix(line, "ad_metrics,variant_id=ad-1 "), line)
	assert.Contains(t, line, "clicks=4")
	assert.Contains(t, line, "spend=2.5")
}
