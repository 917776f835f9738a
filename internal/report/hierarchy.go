package report

import (
	"context"
	"fmt"
	"sort"

	"github.com/quantleap/funnelsight/internal/models"
	"github.com/quantleap/funnelsight/internal/storage"
)

// Hierarchy is the campaign→adset→ad tree under construction. Nodes
// live in flat arenas keyed by object id; parent/child edges are kept
// separately and the tree shape is materialized at rollup.
type Hierarchy struct {
	campaigns map[string]*models.CampaignInfo
	adsets    map[string]*models.AdsetInfo
	ads       map[string]*models.AdInfo

	adsetParent map[string]string // adset id -> campaign id
	adParent    map[string]string // ad id -> adset id
}

// BuildHierarchy seeds the tree from the persisted name cache.
func BuildHierarchy(ctx context.Context, names storage.NameCacheRepo) (*Hierarchy, error) {
	entries, err := names.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load name cache: %w", err)
	}

	h := &Hierarchy{
		campaigns:   make(map[string]*models.CampaignInfo),
		adsets:      make(map[string]*models.AdsetInfo),
		ads:         make(map[string]*models.AdInfo),
		adsetParent: make(map[string]string),
		adParent:    make(map[string]string),
	}

	for _, e := range entries {
		switch e.ObjectType {
		case models.ObjectCampaign:
			h.campaigns[e.ObjectID] = &models.CampaignInfo{ID: e.ObjectID, Name: e.Name}
		case models.ObjectAdset:
			h.adsets[e.ObjectID] = &models.AdsetInfo{ID: e.ObjectID, Name: e.Name}
			if e.ParentID != "" {
				h.adsetParent[e.ObjectID] = e.ParentID
			}
		case models.ObjectAd:
			h.ads[e.ObjectID] = &models.AdInfo{ID: e.ObjectID, Name: e.Name}
			if e.ParentID != "" {
				h.adParent[e.ObjectID] = e.ParentID
			}
		}
	}

	return h, nil
}

// ApplyPlatformMetrics overlays ad-platform figures from every cached
// day, converting spend into the report base currency. Nodes the name
// cache has not seen yet are created on the fly with lazily resolved
// names.
func (h *Hierarchy) ApplyPlatformMetrics(ctx context.Context, days map[models.DayKey]*models.DayCacheEntry, resolver *NameResolver, conv *Converter) error {
	for key, entry := range days {
		currency := entry.Facebook.AccountCurrency

		for _, row := range entry.Facebook.Campaigns {
			node := h.ensureCampaign(ctx, resolver, row.CampaignID)
			m, err := convertedMetrics(row, key, currency, conv)
			if err != nil {
				return err
			}
			node.Metrics.Add(m)
		}

		for _, row := range entry.Facebook.Adsets {
			h.ensureCampaign(ctx, resolver, row.CampaignID)
			node := h.ensureAdset(ctx, resolver, row.AdsetID, row.CampaignID)
			m, err := convertedMetrics(row, key, currency, conv)
			if err != nil {
				return err
			}
			node.Metrics.Add(m)
		}

		for _, row := range entry.Facebook.Ads {
			h.ensureCampaign(ctx, resolver, row.CampaignID)
			h.ensureAdset(ctx, resolver, row.AdsetID, row.CampaignID)
			node := h.ensureAd(ctx, resolver, row.AdID, row.AdsetID)
			m, err := convertedMetrics(row, key, currency, conv)
			if err != nil {
				return err
			}
			node.Metrics.Add(m)
		}
	}
	return nil
}

func convertedMetrics(row models.InsightRow, day models.DayKey, currency string, conv *Converter) (models.AdMetrics, error) {
	spend, err := conv.Convert(day, row.Spend, currency)
	if err != nil {
		return models.AdMetrics{}, fmt.Errorf("failed to convert spend for campaign %s on %s: %w", row.CampaignID, day, err)
	}
	return models.AdMetrics{
		Impressions:          row.Impressions,
		UniqueOutboundClicks: row.UniqueOutboundClicks,
		Reach:                row.Reach,
		Spend:                spend,
	}, nil
}

// ApplySale credits one attributed purchase to its credited ad. The
// node chain must already exist; a missing node means attribution and
// the metric overlay disagree about the account's structure, which is
// not recoverable.
func (h *Hierarchy) ApplySale(p *models.AttributedPurchase, credited *models.TrackedStep) error {
	if credited == nil || credited.Kind != models.StepFacebook {
		return nil
	}
	if _, ok := h.campaigns[credited.CampaignID]; !ok {
		return fmt.Errorf("attributed purchase %s credits unknown campaign %s", p.PurchaseID, credited.CampaignID)
	}
	if _, ok := h.adsets[credited.AdsetID]; !ok {
		return fmt.Errorf("attributed purchase %s credits unknown adset %s", p.PurchaseID, credited.AdsetID)
	}
	ad, ok := h.ads[credited.AdID]
	if !ok {
		return fmt.Errorf("attributed purchase %s credits unknown ad %s", p.PurchaseID, credited.AdID)
	}

	// Sales live on leaves; parent figures come from the rollup sum.
	ad.Sales++
	ad.Cash += p.Cash
	return nil
}

// Rollup materializes the tree and reconciles parent and child
// figures: platform metrics take max(reported, sum(children)), which
// tolerates children deleted on the platform but still present in
// parent totals; sales and cash are always sum(children) because they
// are derived, never platform-reported at parent level.
func (h *Hierarchy) Rollup() *models.FacebookSalesData {
	adsByAdset := make(map[string][]*models.AdInfo)
	for adID, ad := range h.ads {
		adsByAdset[h.adParent[adID]] = append(adsByAdset[h.adParent[adID]], ad)
	}
	adsetsByCampaign := make(map[string][]*models.AdsetInfo)
	for adsetID, adset := range h.adsets {
		adsetsByCampaign[h.adsetParent[adsetID]] = append(adsetsByCampaign[h.adsetParent[adsetID]], adset)
	}

	data := &models.FacebookSalesData{}

	for _, campaign := range h.campaigns {
		campaign.Adsets = adsetsByCampaign[campaign.ID]
		sortAdsetsByName(campaign.Adsets)

		var adsetSum models.AdMetrics
		campaign.Sales = 0
		campaign.Cash = 0

		for _, adset := range campaign.Adsets {
			adset.Ads = adsByAdset[adset.ID]
			sortAdsByName(adset.Ads)

			var adSum models.AdMetrics
			adset.Sales = 0
			adset.Cash = 0
			for _, ad := range adset.Ads {
				adSum.Add(ad.Metrics)
				adset.Sales += ad.Sales
				adset.Cash += ad.Cash
			}
			adset.Metrics = maxMetrics(adset.Metrics, adSum)

			adsetSum.Add(adset.Metrics)
			campaign.Sales += adset.Sales
			campaign.Cash += adset.Cash
		}
		campaign.Metrics = maxMetrics(campaign.Metrics, adsetSum)

		data.Campaigns = append(data.Campaigns, campaign)
		data.TotalSpend += campaign.Metrics.Spend
		data.TotalSales += campaign.Sales
		data.TotalCash += campaign.Cash
	}

	sort.Slice(data.Campaigns, func(i, j int) bool {
		return data.Campaigns[i].Name < data.Campaigns[j].Name
	})

	if data.TotalSpend > 0 {
		data.ROAS = data.TotalCash / data.TotalSpend
	}
	return data
}

func (h *Hierarchy) ensureCampaign(ctx context.Context, resolver *NameResolver, id string) *models.CampaignInfo {
	if node, ok := h.campaigns[id]; ok {
		return node
	}
	node := &models.CampaignInfo{
		ID:   id,
		Name: resolver.Resolve(ctx, id, models.ObjectCampaign, ""),
	}
	h.campaigns[id] = node
	return node
}

func (h *Hierarchy) ensureAdset(ctx context.Context, resolver *NameResolver, id, campaignID string) *models.AdsetInfo {
	if node, ok := h.adsets[id]; ok {
		if _, linked := h.adsetParent[id]; !linked && campaignID != "" {
			h.adsetParent[id] = campaignID
		}
		return node
	}
	node := &models.AdsetInfo{
		ID:   id,
		Name: resolver.Resolve(ctx, id, models.ObjectAdset, campaignID),
	}
	h.adsets[id] = node
	h.adsetParent[id] = campaignID
	return node
}

func (h *Hierarchy) ensureAd(ctx context.Context, resolver *NameResolver, id, adsetID string) *models.AdInfo {
	if node, ok := h.ads[id]; ok {
		if _, linked := h.adParent[id]; !linked && adsetID != "" {
			h.adParent[id] = adsetID
		}
		return node
	}
	node := &models.AdInfo{
		ID:   id,
		Name: resolver.Resolve(ctx, id, models.ObjectAd, adsetID),
	}
	h.ads[id] = node
	h.adParent[id] = adsetID
	return node
}

func maxMetrics(own, children models.AdMetrics) models.AdMetrics {
	return models.AdMetrics{
		Impressions:          maxInt64(own.Impressions, children.Impressions),
		UniqueOutboundClicks: maxInt64(own.UniqueOutboundClicks, children.UniqueOutboundClicks),
		Reach:                maxInt64(own.Reach, children.Reach),
		Spend:                maxFloat(own.Spend, children.Spend),
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func sortAdsetsByName(adsets []*models.AdsetInfo) {
	sort.Slice(adsets, func(i, j int) bool { return adsets[i].Name < adsets[j].Name })
}

func sortAdsByName(ads []*models.AdInfo) {
	sort.Slice(ads, func(i, j int) bool { return ads[i].Name < ads[j].Name })
}
