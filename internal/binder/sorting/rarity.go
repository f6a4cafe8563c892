package sorting

import "strings"

// rarityRanks orders printed rarities from most to least common.
var rarityRanks = map[string]int{
	"common":                    1,
	"uncommon":                  2,
	"rare":                      3,
	"rare holo":                 4,
	"promo":                     5,
	"rare holo ex":              6,
	"rare holo gx":              6,
	"rare holo v":               6,
	"rare holo vmax":            7,
	"rare holo vstar":           7,
	"double rare":               8,
	"rare ultra":                9,
	"ultra rare":                9,
	"illustration rare":         10,
	"rare shiny":                11,
	"shiny rare":                11,
	"ace spec rare":             12,
	"rare rainbow":              13,
	"special illustration rare": 14,
	"rare secret":               15,
	"hyper rare":                16,
}

// RarityRank returns the rank of a printed rarity. Unranked rarities report
// false and sort after every ranked one.
func RarityRank(rarity string) (int, bool) {
	rank, ok := rarityRanks[strings.ToLower(strings.TrimSpace(rarity))]
	return rank, ok
}
