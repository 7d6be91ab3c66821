package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	p, err := Lookup("3")
	require.NoError(t, err)
	assert.Equal(t, "5000 V-Bucks", p.Name)
	assert.Equal(t, 16000.0, p.Price)

	crew, err := Lookup(CrewPackageID)
	require.NoError(t, err)
	assert.Equal(t, "Fortnite Crew", crew.Name)

	_, err = Lookup("42")
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestAll_SortedByID(t *testing.T) {
	all := All()
	require.Len(t, all, 5)
	for i, p := range all {
		assert.Equal(t, string(rune('1'+i)), p.ID)
	}
}

func TestParseShop_NormalizedItems(t *testing.T) {
	body := `{"items":[
		{"id":"a","name":"Renegade","vbucks":1200,"rarity":"Rare","images":{"icon":"icon.png","smallIcon":"s.png"}},
		{"itemId":"b","devName":"dev_b","price":800,"section":"Daily"},
		{"id":"c"},
		{"id":"d"}
	]}`

	items, err := ParseShop([]byte(body), 3)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, ShopItem{ItemID: "a", Name: "Renegade", Description: defaultItemDesc, Price: 1200, Rarity: "Rare", Image: "icon.png"}, items[0])
	assert.Equal(t, "b", items[1].ItemID)
	assert.Equal(t, "dev_b", items[1].Name)
	assert.Equal(t, "Daily", items[1].Description)
	assert.Equal(t, 800.0, items[1].Price)
	assert.Equal(t, defaultItemName, items[2].Name)
	assert.Equal(t, DefaultShopImage, items[2].Image)
}

func TestParseShop_RawEntries(t *testing.T) {
	body := `{"data":{"entries":[
		{"offerId":"o1","finalPrice":1500,
		 "newDisplayAsset":{"renderImages":[{"image":"render.png"}]},
		 "brItems":[{"id":"br1","name":"Peely","rarity":{"displayValue":"Epic"},"images":{"featured":"feat.png"}}]},
		{"id":"o2","devName":"bundle","price":{"finalPrice":500},
		 "brItems":[{"images":{"icon":"icon.png"}}]},
		{"id":"o3"}
	]}}`

	items, err := ParseShop([]byte(body), 3)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "br1", items[0].ItemID)
	assert.Equal(t, "Peely", items[0].Name)
	assert.Equal(t, 1500.0, items[0].Price)
	assert.Equal(t, "Epic", items[0].Rarity)
	assert.Equal(t, "render.png", items[0].Image)

	assert.Equal(t, "o2", items[1].ItemID)
	assert.Equal(t, "bundle", items[1].Name)
	assert.Equal(t, 500.0, items[1].Price)
	assert.Equal(t, "icon.png", items[1].Image)

	assert.Equal(t, DefaultShopImage, items[2].Image)
	assert.Equal(t, defaultRarity, items[2].Rarity)
}

func TestParseShop_TopLevelEntriesAndEmpty(t *testing.T) {
	items, err := ParseShop([]byte(`{"entries":[{"id":"x"}]}`), 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "x", items[0].ItemID)

	items, err = ParseShop([]byte(`{}`), 3)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = ParseShop([]byte(`[`), 3)
	assert.Error(t, err)
}
