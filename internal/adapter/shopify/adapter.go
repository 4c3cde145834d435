package shopify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/apenugon/testgrowth-sub000/internal/config"
	"github.com/apenugon/testgrowth-sub000/internal/interfaces"
	"github.com/apenugon/testgrowth-sub000/internal/utils/httpclient"
)

// Adapter talks to the Shopify Admin API webhook endpoints.
type Adapter struct {
	client     *resty.Client
	apiVersion string
	logger     *logrus.Logger
}

// NewAdapter builds the Admin API adapter on the shared HTTP client.
func NewAdapter(cfg *config.ShopifyConfig, logger *logrus.Logger) interfaces.WebhookRegistrar {
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2024-01"
	}
	client := resty.NewWithClient(httpclient.NewHTTPClient(cfg, logger))
	if cfg.RetryCount > 0 {
		client.SetRetryCount(cfg.RetryCount)
	}
	return &Adapter{
		client:     client,
		apiVersion: apiVersion,
		logger:     logger,
	}
}

type webhookEnvelope struct {
	Webhook webhookResource `json:"webhook"`
}

type webhookResource struct {
	ID      uint64 `json:"id,omitempty"`
	Topic   string `json:"topic"`
	Address string `json:"address"`
	Format  string `json:"format"`
}

type apiError struct {
	Errors interface{} `json:"errors"`
}

func (a *Adapter) CreateWebhook(ctx context.Context, shopDomain, accessToken, topic, address string) (string, error) {
	var result webhookEnvelope
	var apiErr apiError

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("X-Shopify-Access-Token", accessToken).
		SetBody(webhookEnvelope{Webhook: webhookResource{
			Topic:   topic,
			Address: address,
			Format:  "json",
		}}).
		SetResult(&result).
		SetError(&apiErr).
		Post(fmt.Sprintf("https://%s/admin/api/%s/webhooks.json", shopDomain, a.apiVersion))
	if err != nil {
		return "", fmt.Errorf("create webhook %s for %s: %w", topic, shopDomain, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("create webhook %s for %s: status %d: %v",
			topic, shopDomain, resp.StatusCode(), apiErr.Errors)
	}
	if result.Webhook.ID == 0 {
		return "", fmt.Errorf("create webhook %s for %s: empty webhook id in response", topic, shopDomain)
	}
	return fmt.Sprintf("%d", result.Webhook.ID), nil
}

func (a *Adapter) DeleteWebhook(ctx context.Context, shopDomain, accessToken, webhookID string) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("X-Shopify-Access-Token", accessToken).
		Delete(fmt.Sprintf("https://%s/admin/api/%s/webhooks/%s.json", shopDomain, a.apiVersion, webhookID))
	if err != nil {
		return fmt.Errorf("delete webhook %s for %s: %w", webhookID, shopDomain, err)
	}
	// already gone upstream, nothing to do
	if resp.StatusCode() == http.StatusNotFound {
		a.logger.WithFields(logrus.Fields{
			"shop":       shopDomain,
			"webhook_id": webhookID,
		}).Info("webhook already deleted upstream")
		return nil
	}
	if resp.IsError() {
		return fmt.Errorf("delete webhook %s for %s: status %d", webhookID, shopDomain, resp.StatusCode())
	}
	return nil
}
