// internal/pokeapi/generations.go
package pokeapi

// generationBounds maps each generation to its national dex id range.
var generationBounds = []struct {
	Gen   int
	Start int
	End   int
}{
	{1, 1, 151},
	{2, 152, 251},
	{3, 252, 386},
	{4, 387, 493},
	{5, 494, 649},
	{6, 650, 721},
	{7, 722, 809},
	{8, 810, 905},
	{9, 906, 1010},
}

// NumGenerations is the count of known generations.
var NumGenerations = len(generationBounds)

// GenerationOf returns the generation number for a national dex id, or 0 if
// the id is outside every known range.
func GenerationOf(pokemonID int) int {
	for _, b := range generationBounds {
		if pokemonID >= b.Start && pokemonID <= b.End {
			return b.Gen
		}
	}
	return 0
}

// GenerationRange returns the [start, end] dex ids for a generation, or
// ok=false for an unknown generation.
func GenerationRange(gen int) (start, end int, ok bool) {
	for _, b := range generationBounds {
		if b.Gen == gen {
			return b.Start, b.End, true
		}
	}
	return 0, 0, false
}
