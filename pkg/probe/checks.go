package probe

import (
	"context"
	"errors"
	"time"

	"birdtrip/pkg/ebird"
)

// TaxonomySource is the slice of the eBird client the startup check needs.
type TaxonomySource interface {
	Taxonomy(ctx context.Context, locale string) ([]ebird.TaxonEntry, error)
}

// HealthChecker is the slice of the LLM provider chain the startup check needs.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checks builds the standard startup probe set. Nothing here is
// critical: a missing eBird token already failed in ebird.New, and a
// temporarily unreachable API or LLM should not keep the server down.
// The taxonomy call doubles as a cache warm-up for species validation,
// so it gets a generous timeout.
func Checks(taxonomy TaxonomySource, llmChain HealthChecker) []Probe {
	var probes []Probe

	if taxonomy != nil {
		probes = append(probes, Probe{
			Name:    "eBird taxonomy",
			Timeout: 30 * time.Second,
			Check: func(ctx context.Context) error {
				entries, err := taxonomy.Taxonomy(ctx, "en")
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					return errors.New("taxonomy came back empty")
				}
				return nil
			},
		})
	}

	if llmChain != nil {
		probes = append(probes, Probe{
			Name: "LLM chain",
			Check: func(ctx context.Context) error {
				return llmChain.HealthCheck(ctx)
			},
		})
	}

	return probes
}
