// Package names generates default display names for game servers created
// without an explicit name, in Docker-style "adjective-noun" format drawn
// from Minecraft-flavored vocabularies.
//
// Uses secure random selection for unpredictable name patterns. Generated
// names always satisfy the server-name validation rules, so a defaulted
// name never bounces a create request.
//
// Examples: "emerald-creeper", "glowing-beacon", "ancient-stronghold"
package names

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Adjectives drawn from overworld materials and moods.
var adjectives = []string{
	"amber", "ancient", "blazing", "bold", "brave",
	"crimson", "crystal", "daring", "dusty", "emerald",
	"enchanted", "frosty", "gilded", "glowing", "golden",
	"hidden", "iron", "jolly", "lucky", "lush",
	"mighty", "misty", "mossy", "obsidian", "polished",
	"quartz", "quiet", "radiant", "rustic", "shimmering",
	"silent", "smooth", "stalwart", "stormy", "sunny",
	"swift", "verdant", "warped", "wild", "wintry",
}

// Nouns drawn from mobs, biomes and structures.
var nouns = []string{
	"axolotl", "bastion", "beacon", "biome", "blaze",
	"cavern", "citadel", "creeper", "dungeon", "enderman",
	"forge", "fortress", "glacier", "grotto", "harbor",
	"igloo", "jungle", "lagoon", "mesa", "monolith",
	"nether", "outpost", "parrot", "phantom", "portal",
	"prairie", "ravine", "sanctum", "savanna", "shrine",
	"stronghold", "summit", "taiga", "temple", "trident",
	"tundra", "village", "warden", "wolf", "zenith",
}

// Generate returns a random "adjective-noun" server name.
func Generate() string {
	adjective := adjectives[randomIndex(len(adjectives))]
	noun := nouns[randomIndex(len(nouns))]
	return fmt.Sprintf("%s-%s", adjective, noun)
}

// randomIndex returns a cryptographically random index in [0, max).
// Falls back to 0 on entropy failure rather than propagating an error for
// a cosmetic concern.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return int(n.Int64())
}
