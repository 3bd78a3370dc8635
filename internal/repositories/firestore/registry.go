package firestore

import (
	"context"
	"fmt"
	"time"

	pfirestore "github.com/sharashena/07.E-Commerce-server/internal/platform/firestore"
	"github.com/sharashena/07.E-Commerce-server/internal/repositories"
)

const probeTimeout = 3 * time.Second

// Registry bundles the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider *pfirestore.Provider
	orders   *OrderRepository
	users    *UserRepository
	products *ProductRepository
	reviews  *ReviewRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository on the shared provider. Additional readiness probes
// (cache, mail relay) are appended to the Firestore probe.
func NewRegistry(provider *pfirestore.Provider, probes ...repositories.Probe) (*Registry, error) {
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	reviews, err := NewReviewRepository(provider)
	if err != nil {
		return nil, err
	}

	all := append([]repositories.Probe{{Name: "firestore", Critical: true, Check: provider.Ping}}, probes...)
	health, err := repositories.NewProbeHealthRepository(all, repositories.WithProbeTimeout(probeTimeout))
	if err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}

	return &Registry{
		provider: provider,
		orders:   orders,
		users:    users,
		products: products,
		reviews:  reviews,
		health:   health,
	}, nil
}

func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Users() repositories.UserRepository       { return r.users }
func (r *Registry) Products() repositories.ProductRepository { return r.products }
func (r *Registry) Reviews() repositories.ReviewRepository   { return r.reviews }
func (r *Registry) Health() repositories.HealthRepository    { return r.health }

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
