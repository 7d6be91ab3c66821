package catalog

import (
	"encoding/json"
	"fmt"
)

const (
	DefaultShopImage = "assets/5000vbucks.png"
	defaultItemName  = "Skin Fortnite"
	defaultItemDesc  = "Disponible aujourd'hui"
	defaultRarity    = "Classique"
)

// ShopItem is one card of the live item shop preview.
type ShopItem struct {
	ItemID      string  `json:"itemId"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Rarity      string  `json:"rarity"`
	Image       string  `json:"image"`
}

type shopImages struct {
	Featured  string `json:"featured"`
	Icon      string `json:"icon"`
	SmallIcon string `json:"smallIcon"`
}

// normalizedItem is the shape our backend returns under "items".
type normalizedItem struct {
	ID          string          `json:"id"`
	ItemID      string          `json:"itemId"`
	Name        string          `json:"name"`
	DevName     string          `json:"devName"`
	Description string          `json:"description"`
	Section     string          `json:"section"`
	VBucks      *float64        `json:"vbucks"`
	Price       *float64        `json:"price"`
	Rarity      json.RawMessage `json:"rarity"`
	Images      shopImages      `json:"images"`
}

// rawEntry is an upstream Fortnite API shop entry.
type rawEntry struct {
	ID         string   `json:"id"`
	OfferID    string   `json:"offerId"`
	DevName    string   `json:"devName"`
	FinalPrice *float64 `json:"finalPrice"`
	Price      *struct {
		FinalPrice *float64 `json:"finalPrice"`
	} `json:"price"`
	BRItems []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Rarity      struct {
			DisplayValue string `json:"displayValue"`
		} `json:"rarity"`
		Images shopImages `json:"images"`
	} `json:"brItems"`
	NewDisplayAsset *struct {
		RenderImages []struct {
			Image string `json:"image"`
		} `json:"renderImages"`
	} `json:"newDisplayAsset"`
}

type shopPayload struct {
	Items   []normalizedItem `json:"items"`
	Entries []rawEntry       `json:"entries"`
	Data    *struct {
		Entries []rawEntry `json:"entries"`
	} `json:"data"`
}

// ParseShop extracts at most limit preview items. Normalized items win over
// raw entries; raw entries are read from "entries" then "data.entries".
func ParseShop(body []byte, limit int) ([]ShopItem, error) {
	var p shopPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode shop payload: %w", err)
	}

	var out []ShopItem
	switch {
	case len(p.Items) > 0:
		for _, it := range p.Items {
			out = append(out, fromNormalized(it))
		}
	case len(p.Entries) > 0:
		for _, e := range p.Entries {
			out = append(out, fromEntry(e))
		}
	case p.Data != nil:
		for _, e := range p.Data.Entries {
			out = append(out, fromEntry(e))
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func fromNormalized(it normalizedItem) ShopItem {
	var price float64
	switch {
	case it.VBucks != nil:
		price = *it.VBucks
	case it.Price != nil:
		price = *it.Price
	}
	rarity := defaultRarity
	var s string
	if json.Unmarshal(it.Rarity, &s) == nil && s != "" {
		rarity = s
	}
	return ShopItem{
		ItemID:      firstNonEmpty(it.ID, it.ItemID),
		Name:        firstNonEmpty(it.Name, it.DevName, defaultItemName),
		Description: firstNonEmpty(it.Description, it.Section, defaultItemDesc),
		Price:       price,
		Rarity:      rarity,
		Image:       firstNonEmpty(it.Images.Featured, it.Images.Icon, it.Images.SmallIcon, DefaultShopImage),
	}
}

func fromEntry(e rawEntry) ShopItem {
	item := ShopItem{
		ItemID:      firstNonEmpty(e.OfferID, e.ID),
		Name:        firstNonEmpty(e.DevName, defaultItemName),
		Description: defaultItemDesc,
		Rarity:      defaultRarity,
	}
	switch {
	case e.FinalPrice != nil:
		item.Price = *e.FinalPrice
	case e.Price != nil && e.Price.FinalPrice != nil:
		item.Price = *e.Price.FinalPrice
	}

	var render string
	if e.NewDisplayAsset != nil && len(e.NewDisplayAsset.RenderImages) > 0 {
		render = e.NewDisplayAsset.RenderImages[0].Image
	}
	if len(e.BRItems) == 0 {
		item.Image = firstNonEmpty(render, DefaultShopImage)
		return item
	}

	br := e.BRItems[0]
	item.ItemID = firstNonEmpty(br.ID, item.ItemID)
	item.Name = firstNonEmpty(br.Name, item.Name)
	item.Description = firstNonEmpty(br.Description, defaultItemDesc)
	item.Rarity = firstNonEmpty(br.Rarity.DisplayValue, defaultRarity)
	item.Image = firstNonEmpty(render, br.Images.Featured, br.Images.Icon, DefaultShopImage)
	return item
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
