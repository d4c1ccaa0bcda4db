package main

import (
	"math/rand"
	"sort"
)

// WordPair is one villager/spy word pairing. The two words are always
// related closely enough that clues for one can plausibly fit the other.
type WordPair struct {
	Villager string `json:"villager"`
	Spy      string `json:"spy"`
}

var wordPairs = map[string][]WordPair{
	"food": {
		{Villager: "pizza", Spy: "lasagna"},
		{Villager: "sushi", Spy: "sashimi"},
		{Villager: "pancake", Spy: "waffle"},
		{Villager: "burger", Spy: "sandwich"},
		{Villager: "taco", Spy: "burrito"},
		{Villager: "croissant", Spy: "bagel"},
	},
	"animals": {
		{Villager: "dog", Spy: "wolf"},
		{Villager: "dolphin", Spy: "shark"},
		{Villager: "crow", Spy: "raven"},
		{Villager: "rabbit", Spy: "hare"},
		{Villager: "leopard", Spy: "cheetah"},
		{Villager: "turtle", Spy: "tortoise"},
	},
	"places": {
		{Villager: "beach", Spy: "lake"},
		{Villager: "library", Spy: "bookstore"},
		{Villager: "hospital", Spy: "clinic"},
		{Villager: "airport", Spy: "train station"},
		{Villager: "cinema", Spy: "theater"},
		{Villager: "castle", Spy: "palace"},
	},
	"movies": {
		{Villager: "titanic", Spy: "poseidon"},
		{Villager: "batman", Spy: "superman"},
		{Villager: "frozen", Spy: "tangled"},
		{Villager: "alien", Spy: "predator"},
		{Villager: "jaws", Spy: "moby dick"},
		{Villager: "rocky", Spy: "creed"},
	},
	"jobs": {
		{Villager: "doctor", Spy: "nurse"},
		{Villager: "teacher", Spy: "professor"},
		{Villager: "pilot", Spy: "captain"},
		{Villager: "chef", Spy: "baker"},
		{Villager: "lawyer", Spy: "judge"},
		{Villager: "painter", Spy: "sculptor"},
	},
	"sports": {
		{Villager: "football", Spy: "rugby"},
		{Villager: "tennis", Spy: "badminton"},
		{Villager: "boxing", Spy: "wrestling"},
		{Villager: "skiing", Spy: "snowboarding"},
		{Villager: "swimming", Spy: "diving"},
		{Villager: "baseball", Spy: "cricket"},
	},
	"countries": {
		{Villager: "japan", Spy: "korea"},
		{Villager: "spain", Spy: "portugal"},
		{Villager: "canada", Spy: "norway"},
		{Villager: "egypt", Spy: "morocco"},
		{Villager: "brazil", Spy: "argentina"},
		{Villager: "australia", Spy: "new zealand"},
	},
	"objects": {
		{Villager: "pencil", Spy: "pen"},
		{Villager: "mirror", Spy: "window"},
		{Villager: "candle", Spy: "lantern"},
		{Villager: "umbrella", Spy: "raincoat"},
		{Villager: "clock", Spy: "watch"},
		{Villager: "ladder", Spy: "staircase"},
	},
}

// categories returns the category names in stable order.
func categories() []string {
	names := make([]string, 0, len(wordPairs))
	for name := range wordPairs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// wordPairFor draws one pair at random from the named category.
func wordPairFor(category string, rng *rand.Rand) (WordPair, error) {
	pairs, ok := wordPairs[category]
	if !ok || len(pairs) == 0 {
		return WordPair{}, ErrUnknownCategory
	}
	return pairs[rng.Intn(len(pairs))], nil
}
