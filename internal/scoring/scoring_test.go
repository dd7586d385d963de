package scoring

import (
	"math"
	"testing"

	"drop-match-api/internal/models"
)

func profile(interests, cuisines []string, price models.PriceRange) models.Profile {
	return models.Profile{
		Interests:          interests,
		CuisinePreferences: cuisines,
		PriceRange:         price,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScore_Symmetry(t *testing.T) {
	a := profile([]string{"hiking", "jazz", "films"}, []string{"thai", "italian"}, models.PriceModerate)
	b := profile([]string{"jazz", "chess"}, []string{"italian"}, models.PriceCheap)

	ab := Score(a, b)
	ba := Score(b, a)

	if !almostEqual(ab.Score, ba.Score) {
		t.Fatalf("Score not symmetric: %v vs %v", ab.Score, ba.Score)
	}
	if len(ab.CommonInterests) != len(ba.CommonInterests) {
		t.Errorf("Common interest counts differ: %v vs %v", ab.CommonInterests, ba.CommonInterests)
	}
}

func TestScore_DisjointProfilesScoreZero(t *testing.T) {
	a := profile([]string{"hiking"}, []string{"thai"}, models.PriceCheap)
	b := profile([]string{"chess"}, []string{"italian"}, models.PriceLuxury)

	got := Score(a, b)
	if got.Score != 0 {
		t.Fatalf("Expected score 0 for disjoint profiles, got %v", got.Score)
	}
	if len(got.CommonInterests) != 0 || len(got.CommonCuisines) != 0 {
		t.Errorf("Expected empty common sets, got %v / %v", got.CommonInterests, got.CommonCuisines)
	}
}

func TestScore_KnownValue(t *testing.T) {
	// 2 shared interests, 1 shared cuisine, same price range:
	// 100 * (0.4*2/3 + 0.4*1/2 + 0.2) = 66.666...
	a := profile([]string{"hiking", "jazz"}, []string{"thai"}, models.PriceModerate)
	b := profile([]string{"hiking", "jazz", "films"}, []string{"thai", "sushi"}, models.PriceModerate)

	got := Score(a, b)
	want := 100 * (interestWeight*2/interestBaseline + cuisineWeight*1/cuisineBaseline + priceWeight)
	if !almostEqual(got.Score, want) {
		t.Fatalf("Expected score %v, got %v", want, got.Score)
	}
}

func TestScore_ExceedsHundredAboveBaseline(t *testing.T) {
	shared := []string{"a", "b", "c", "d", "e", "f"}
	cuisines := []string{"thai", "italian", "sushi"}
	a := profile(shared, cuisines, models.PriceModerate)
	b := profile(shared, cuisines, models.PriceModerate)

	got := Score(a, b)
	if got.Score <= 100 {
		t.Fatalf("Expected score above 100 for overlap beyond baseline, got %v", got.Score)
	}
}

func TestScore_CaseInsensitiveIntersection(t *testing.T) {
	a := profile([]string{"Hiking", "JAZZ"}, []string{"Thai"}, models.PriceCheap)
	b := profile([]string{"hiking", "jazz"}, []string{"thai"}, models.PriceCheap)

	got := Score(a, b)
	if len(got.CommonInterests) != 2 {
		t.Fatalf("Expected 2 common interests, got %v", got.CommonInterests)
	}
	if len(got.CommonCuisines) != 1 {
		t.Fatalf("Expected 1 common cuisine, got %v", got.CommonCuisines)
	}
}

func TestRecommendCuisine_PrefersShared(t *testing.T) {
	a := profile(nil, []string{"thai", "italian"}, models.PriceCheap)
	b := profile(nil, []string{"italian", "thai"}, models.PriceCheap)

	res := Score(a, b)
	got := RecommendCuisine(a, b, res.CommonCuisines, "surprise")
	if got != "thai" {
		t.Fatalf("Expected first shared cuisine 'thai', got %q", got)
	}
}

func TestRecommendCuisine_FallsBackToEitherSide(t *testing.T) {
	a := profile(nil, nil, models.PriceCheap)
	b := profile(nil, []string{"sushi"}, models.PriceCheap)

	got := RecommendCuisine(a, b, nil, "surprise")
	if got != "sushi" {
		t.Fatalf("Expected 'sushi' from the only listed side, got %q", got)
	}
}

func TestRecommendCuisine_ConfiguredDefault(t *testing.T) {
	a := profile(nil, nil, models.PriceCheap)
	b := profile(nil, nil, models.PriceCheap)

	got := RecommendCuisine(a, b, nil, "surprise")
	if got != "surprise" {
		t.Fatalf("Expected configured default, got %q", got)
	}
}
