package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"budgetPilot/business/fatigue"
	"budgetPilot/domain"
	"budgetPilot/pkg/logger"

	"github.com/pobyzaarif/goshortcute"
)

type WebhookConfig struct {
	URL               string
	BasicAuthUsername string
	BasicAuthPassword string
}

// RefreshWebhook posts creative-refresh requests to the creative team's
// webhook. With no URL configured it only logs.
type RefreshWebhook struct {
	cfg    WebhookConfig
	client *http.Client
}

func NewRefreshWebhook(cfg WebhookConfig) *RefreshWebhook {
	return &RefreshWebhook{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

type refreshPayload struct {
	VariantID   string               `json:"variant_id"`
	ParentID    string               `json:"parent_id"`
	AccountID   string               `json:"account_id"`
	Remediation fatigue.Remediation  `json:"remediation"`
	Severity    float64              `json:"severity"`
	Triggered   []fatigue.Rule       `json:"triggered"`
	Rules       []fatigue.RuleResult `json:"rules"`
	SentAt      time.Time            `json:"sent_at"`
}

func (r *RefreshWebhook) NotifyRefresh(ctx context.Context, v domain.Variant, verdict fatigue.Verdict) error {
	if r.cfg.URL == "" {
		logger.Info("creative_refresh_requested",
			"variant_id", v.ID,
			"parent_id", v.ParentID,
			"severity", verdict.MaxSeverity,
		)
		return nil
	}

	payloadByte, err := json.Marshal(refreshPayload{
		VariantID:   v.ID,
		ParentID:    v.ParentID,
		AccountID:   v.AccountID,
		Remediation: verdict.Remediation,
		Severity:    verdict.MaxSeverity,
		Triggered:   verdict.Triggered,
		Rules:       verdict.Rules,
		SentAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal json payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, strings.NewReader(string(payloadByte)))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	if r.cfg.BasicAuthUsername != "" {
		buildBasicAuth := goshortcute.StringtoBase64Encode(r.cfg.BasicAuthUsername + ":" + r.cfg.BasicAuthPassword)
		req.Header.Add("Authorization", "Basic "+buildBasicAuth)
	}

	res, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		return nil
	}
	bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	logger.Warn("refresh_webhook_rejected", "status", res.StatusCode, "body", string(bodyBytes))

	return fmt.Errorf("refresh webhook returned negative response %v", res.StatusCode)
}
