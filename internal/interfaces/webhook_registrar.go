package interfaces

import "context"

// WebhookRegistrar is the upstream platform's webhook registration API.
type WebhookRegistrar interface {
	// CreateWebhook registers a topic subscription for the shop, pointed at
	// the given queue address, and returns the upstream webhook id.
	CreateWebhook(ctx context.Context, shopDomain, accessToken, topic, address string) (string, error)
	// DeleteWebhook removes a registration by upstream id. An already-deleted
	// webhook is not an error.
	DeleteWebhook(ctx context.Context, shopDomain, accessToken, webhookID string) error
}
