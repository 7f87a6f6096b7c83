package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campusbite/api/internal/platform/config"
	"github.com/campusbite/api/internal/qr"
	"github.com/campusbite/api/internal/repositories"
	"github.com/campusbite/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Pricing services.PricingService
	Orders  services.OrderService
}

// Infrastructure carries the runtime collaborators that live outside the
// repository registry: the PSP gateway, the event publisher, and the QR pipeline.
type Infrastructure struct {
	Gateway services.CheckoutGateway
	Events  services.OrderEventPublisher
	Signer  services.TokenSigner
	Render  services.ArtifactRenderer
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and supporting infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries and stub infrastructure.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, cfg, reg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (Services, error) {
	var svc Services

	pricingSvc, err := services.NewPricingService(services.PricingServiceDeps{
		FoodItems: reg.FoodItems(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing service: %w", err)
	}
	svc.Pricing = pricingSvc

	signer := infra.Signer
	if signer == nil {
		signer, err = qr.NewSigner(cfg.QR.SigningSecret)
		if err != nil {
			return Services{}, fmt.Errorf("build qr signer: %w", err)
		}
	}

	render := infra.Render
	if render == nil {
		render = qr.DataURL
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:    reg.Orders(),
		Payments:  reg.Payments(),
		Lounges:   reg.Lounges(),
		Contracts: reg.Contracts(),
		Pricing:   pricingSvc,
		Gateway:   infra.Gateway,
		Events:    infra.Events,
		Signer:    signer,
		Render:    render,

		CommissionRate:     cfg.Commission.Rate,
		Currency:           cfg.PSP.Currency,
		CheckoutSuccessURL: cfg.PSP.CheckoutSuccessURL,
		CheckoutCancelURL:  cfg.PSP.CheckoutCancelURL,

		Clock:  time.Now,
		Logger: infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	return svc, nil
}
