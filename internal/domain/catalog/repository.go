package catalog

import "context"

// Repository is the read-only catalog lookup the core consumes to answer
// "how many tokens does this plan grant" (spec.md §3). When a plan_key is
// absent, implementations return an error marked CatalogMissing (spec.md §7).
type Repository interface {
	GetSubscriptionPrice(ctx context.Context, planKey string) (*SubscriptionPrice, error)
	GetTokenPrice(ctx context.Context, planKey string) (*TokenPrice, error)
}
