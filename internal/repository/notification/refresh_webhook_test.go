//go:build !integration

package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"budgetPilot/business/fatigue"
	"budgetPilot/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyRefresh_PostsVerdict(t *testing.T) {
	var got refreshPayload
	var user, pass string
	var hasAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, hasAuth = r.BasicAuth()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook := NewRefreshWebhook(WebhookConfig{URL: srv.URL, BasicAuthUsername: "creative", BasicAuthPassword: "s3cret"})
	err := hook.NotifyRefresh(context.Background(),
		domain.Variant{ID: "ad-1", ParentID: "set-1", AccountID: "acct"},
		fatigue.Verdict{
			Fatigued:    true,
			Triggered:   []fatigue.Rule{fatigue.RuleCTRDecline},
			MaxSeverity: 0.4,
			Remediation: fatigue.RemediationRefreshCreative,
		})
	require.NoError(t, err)

	assert.True(t, hasAuth)
	assert.Equal(t, "creative", user)
	assert.Equal(t, "s3cret", pass)
	assert.Equal(t, "ad-1", got.VariantID)
	assert.Equal(t, fatigue.RemediationRefreshCreative, got.Remediation)
	assert.Equal(t, []fatigue.Rule{fatigue.RuleCTRDecline}, got.Triggered)
}

func TestNotifyRefresh_NegativeResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewRefreshWebhook(WebhookConfig{URL: srv.URL}).NotifyRefresh(context.Background(), domain.Variant{ID: "ad-1"}, fatigue.Verdict{})
	assert.Error(t, err)
}

func TestNotifyRefresh_NoURLOnlyLogs(t *testing.T) {
	err := NewRefreshWebhook(WebhookConfig{}).NotifyRefresh(context.Background(), domain.Variant{ID: "ad-1"}, fatigue.Verdict{})
	assert.NoError(t, err)
}
