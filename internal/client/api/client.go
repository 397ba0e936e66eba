package api

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/and161185/tim-admin/internal/model"
)

// Client groups the resources served by one backend.
type Client struct {
	Account      *Account
	Services     *Resource[model.Service]
	Reviews      *Resource[model.Review]
	Distributors *Resource[model.Distributor]
	Projects     *Resource[model.Project]
	Translations *Resource[model.Translation]
}

// NewClient wires every resource onto d.
func NewClient(d Doer) *Client {
	return &Client{
		Account:      NewAccount(d),
		Services:     NewResource[model.Service](d, Endpoint{Path: PathServices, Multipart: true}),
		Reviews:      NewResource[model.Review](d, Endpoint{Path: PathReviews, Multipart: true}),
		Distributors: NewResource[model.Distributor](d, Endpoint{Path: PathDistributors, Multipart: true}),
		Projects:     NewResource[model.Project](d, Endpoint{Path: PathProjects, Multipart: true}),
		Translations: NewResource[model.Translation](d, Endpoint{Path: PathTranslations, BoolFields: []string{"is_use"}}),
	}
}

// Dashboard counts records per section. A section that fails to load
// counts as zero; only cancellation of ctx is reported.
func (c *Client) Dashboard(ctx context.Context) (model.DashboardStats, error) {
	var stats model.DashboardStats
	g, gctx := errgroup.WithContext(ctx)

	count := func(dst *int, total func(context.Context) (int, error)) {
		g.Go(func() error {
			n, err := total(gctx)
			if err == nil {
				*dst = n
			}
			return nil
		})
	}
	count(&stats.ServicesCount, c.Services.total)
	count(&stats.ReviewsCount, c.Reviews.total)
	count(&stats.DistributorsCount, c.Distributors.total)
	count(&stats.ProjectsCount, c.Projects.total)
	count(&stats.TranslationsCount, c.Translations.total)

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return model.DashboardStats{}, err
	}
	return stats, nil
}

func (r *Resource[T]) total(ctx context.Context) (int, error) {
	p, err := r.Paginate(ctx, model.ListQuery{Page: 1, Limit: 1})
	if err != nil {
		return 0, err
	}
	return p.Total, nil
}
