package catalog

import (
	"errors"
	"sort"
)

var ErrPackageNotFound = errors.New("package not found")

// CrewPackageID is the monthly subscription; it needs Epic account details at checkout.
const CrewPackageID = "5"

type Package struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	OriginalPrice float64 `json:"originalPrice"`
	Savings       float64 `json:"savings"`
	Rarity        string  `json:"rarity"`
	Badge         string  `json:"badge"`
	Image         string  `json:"image"`
}

var packages = map[string]Package{
	"1": {ID: "1", Name: "1000 V-Bucks", Price: 3500, OriginalPrice: 5500, Savings: 2000, Rarity: "legendary", Badge: "STARTER", Image: "assets/1000vbucks.png"},
	"2": {ID: "2", Name: "2800 V-Bucks", Price: 9000, OriginalPrice: 14500, Savings: 5500, Rarity: "epic", Badge: "POPULAIRE", Image: "assets/2800vbucks.png"},
	"3": {ID: "3", Name: "5000 V-Bucks", Price: 16000, OriginalPrice: 26000, Savings: 10000, Rarity: "mythic", Badge: "MEILLEUR DEAL", Image: "assets/5000vbucks.png"},
	"4": {ID: "4", Name: "13500 V-Bucks", Price: 38000, OriginalPrice: 65000, Savings: 27000, Rarity: "mythic", Badge: "MEGA PACK", Image: "assets/13500vbucks.png"},
	"5": {ID: "5", Name: "Fortnite Crew", Price: 4500, OriginalPrice: 7500, Savings: 3000, Rarity: "legendary", Badge: "MENSUEL", Image: "assets/crew.png"},
}

// Lookup returns the package with the given id.
func Lookup(id string) (Package, error) {
	p, ok := packages[id]
	if !ok {
		return Package{}, ErrPackageNotFound
	}
	return p, nil
}

// All returns the packages ordered by id.
func All() []Package {
	out := make([]Package, 0, len(packages))
	for _, p := range packages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
