//go:build !integration

package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"budgetPilot/business/changequeue"
	"budgetPilot/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func budgetChange() domain.PendingChange {
	return domain.PendingChange{
		ID:             "c-1",
		EntityID:       "ad-7",
		EntityType:     "ad",
		ChangeKind:     domain.ChangeKindBudget,
		RequestedValue: "42.50",
	}
}

func TestExecute_SendsSetRequest(t *testing.T) {
	var got updateRequest
	var path, method, auth, idem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, method = r.URL.Path, r.Method
		auth, idem = r.Header.Get("Authorization"), r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"daily_budget":"42.50"}`))
	}))
	defer srv.Close()

	res := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "k"}).Execute(context.Background(), budgetChange())

	require.Equal(t, changequeue.ResultOK, res.Class)
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/ads/ad-7", path)
	assert.Equal(t, "Bearer k", auth)
	assert.Equal(t, "c-1", idem)
	assert.Equal(t, updateRequest{ChangeID: "c-1", ChangeKind: "budget", Value: "42.50"}, got)
	assert.Equal(t, "42.50", res.Response["daily_budget"])
	assert.Equal(t, 200, res.Response["status_code"])
}

func TestExecute_ClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		want   changequeue.ResultClass
	}{
		{http.StatusNoContent, changequeue.ResultOK},
		{http.StatusRequestTimeout, changequeue.ResultTransient},
		{http.StatusTooManyRequests, changequeue.ResultTransient},
		{http.StatusBadGateway, changequeue.ResultTransient},
		{http.StatusServiceUnavailable, changequeue.ResultTransient},
		{http.StatusBadRequest, changequeue.ResultTerminal},
		{http.StatusNotFound, changequeue.ResultTerminal},
		{http.StatusUnprocessableEntity, changequeue.ResultTerminal},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			res := NewClient(Config{BaseURL: srv.URL}).Execute(context.Background(), budgetChange())
			assert.Equal(t, tc.want, res.Class)
			if tc.want != changequeue.ResultOK {
				assert.Error(t, res.Err)
			}
		})
	}
}

func TestExecute_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	res := NewClient(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}).Execute(context.Background(), budgetChange())
	assert.Equal(t, changequeue.ResultTransient, res.Class)
}

func TestExecute_UnreachableIsTransient(t *testing.T) {
	res := NewClient(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}).Execute(context.Background(), budgetChange())
	assert.Equal(t, changequeue.ResultTransient, res.Class)
}
