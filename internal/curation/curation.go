package curation

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"farmBoxAPI/internal/types/product"
	"farmBoxAPI/internal/types/subscription"
)

// Catalog is the read-only product source the engine selects from. The
// returned slice is expected available-only; ordering is re-applied here so
// the engine does not depend on it.
type Catalog interface {
	FindAvailableProducts(ctx context.Context, filter ProductFilter) ([]product.Product, error)
	FindProductByID(ctx context.Context, id uuid.UUID) (*product.Product, error)
}

type ProductFilter struct {
	Categories    []string
	FarmID        *uuid.UUID
	ExcludedNames []string
}

// mixedExpansion maps the pseudo-category to the real categories it stands
// for. Extend here when a new member category is added.
var mixedExpansion = map[string][]string{
	subscription.CategoryMixed: {
		subscription.CategoryVegetables,
		subscription.CategoryFruits,
		subscription.CategoryHerbs,
	},
}

// ExpandCategory resolves a subscription category into the concrete catalog
// categories to search.
func ExpandCategory(category string) []string {
	if expanded, ok := mixedExpansion[category]; ok {
		return expanded
	}
	return []string{category}
}

// boxTargetCents is the monetary value each box size aims for.
var boxTargetCents = map[subscription.BoxSize]int{
	subscription.BoxSizeSmall:  3000,
	subscription.BoxSizeMedium: 4700,
	subscription.BoxSizeLarge:  7000,
	subscription.BoxSizeFamily: 10500,
}

func TargetValueCents(size subscription.BoxSize) int {
	return boxTargetCents[size]
}

// Selection is the outcome of curating one box. Undershooting the target is
// a valid result, not an error.
type Selection struct {
	Products    []product.Product `json:"products"`
	TotalCents  int               `json:"totalCents"`
	TargetCents int               `json:"targetCents"`
	FarmCount   int               `json:"farmCount"`
	Undershot   bool              `json:"undershot"`
}

// Engine fills a box for a subscription with a greedy walk over the catalog.
// It only reads, so previews are safe to run repeatedly and concurrently.
type Engine struct {
	catalog Catalog
}

func NewEngine(catalog Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// Curate picks products for the subscription's next box: candidates ordered
// by popularity (newest first on ties), preferred farms floated to the front,
// then included greedily until the running total reaches the box target,
// never drawing from more than MaxFarmsPerBox distinct farms.
func (e *Engine) Curate(ctx context.Context, sub *subscription.Subscription) (*Selection, error) {
	filter := ProductFilter{
		FarmID:        sub.FarmID,
		ExcludedNames: sub.ExcludedItems,
	}
	if sub.Category != nil {
		filter.Categories = ExpandCategory(*sub.Category)
	}

	candidates, err := e.catalog.FindAvailableProducts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidates: %w", err)
	}

	excluded := make(map[string]bool, len(sub.ExcludedItems))
	for _, name := range sub.ExcludedItems {
		excluded[name] = true
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].PopularityScore != candidates[j].PopularityScore {
			return candidates[i].PopularityScore > candidates[j].PopularityScore
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})

	candidates = partitionPreferred(candidates, sub.PreferredFarms)

	target := TargetValueCents(sub.BoxSize)
	maxFarms := sub.MaxFarmsPerBox
	if maxFarms <= 0 {
		maxFarms = subscription.DefaultMaxFarmsPerBox
	}

	farmsUsed := make(map[uuid.UUID]bool)
	selected := make([]product.Product, 0, len(candidates))
	total := 0

	for _, cand := range candidates {
		if excluded[cand.Name] {
			continue
		}
		if !farmsUsed[cand.FarmID] && len(farmsUsed) >= maxFarms {
			continue
		}

		selected = append(selected, cand)
		farmsUsed[cand.FarmID] = true
		total += cand.PriceCents

		if total >= target {
			break
		}
	}

	return &Selection{
		Products:    selected,
		TotalCents:  total,
		TargetCents: target,
		FarmCount:   len(farmsUsed),
		Undershot:   total < target,
	}, nil
}

// partitionPreferred moves products from preferred farms ahead of the rest
// while keeping the incoming order inside each group. It is a stable
// partition, deliberately not a re-sort: popularity order survives within
// both halves.
func partitionPreferred(items []product.Product, preferred []uuid.UUID) []product.Product {
	if len(preferred) == 0 {
		return items
	}

	preferredSet := make(map[uuid.UUID]bool, len(preferred))
	for _, id := range preferred {
		preferredSet[id] = true
	}

	front := make([]product.Product, 0, len(items))
	back := make([]product.Product, 0, len(items))
	for _, p := range items {
		if preferredSet[p.FarmID] {
			front = append(front, p)
		} else {
			back = append(back, p)
		}
	}

	return append(front, back...)
}
