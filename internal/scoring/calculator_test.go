// Package scoring computes keyword traffic/difficulty/position scores
// from live store search results.
package scoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/appagent/aso/pkg/models"
)

// ComputeSuite is a test suite for the score computation.
type ComputeSuite struct {
	suite.Suite
}

func TestComputeSuite(t *testing.T) {
	suite.Run(t, new(ComputeSuite))
}

// makeApps builds a result list of n apps with the given reviews and
// rating. IDs are app-0..app-n-1.
func makeApps(n, reviews int, rating float64) []models.AppSummary {
	apps := make([]models.AppSummary, n)
	for i := range apps {
		apps[i] = models.AppSummary{
			ID:          fmt.Sprintf("app-%d", i),
			Title:       fmt.Sprintf("App %d", i),
			Description: "a plain description",
			Reviews:     reviews,
			Score:       rating,
		}
	}
	return apps
}

// =============================================================================
// GOOD SCENARIOS - Expected normal operations
// =============================================================================

func (s *ComputeSuite) TestCompute_GoodScenarios_WorkedExample() {
	// The subject app sits at position 3 among 10 results averaging
	// 3000 reviews and 4.2 rating, with the keyword mentioned in 4 of
	// the 10 listings.
	reviews := []int{5000, 4000, 3500, 3200, 3000, 2800, 2600, 2400, 2000, 1500}
	apps := make([]models.AppSummary, 10)
	for i := range apps {
		apps[i] = models.AppSummary{
			ID:          fmt.Sprintf("app-%d", i),
			Title:       fmt.Sprintf("App %d", i),
			Description: "a plain description",
			Reviews:     reviews[i],
			Score:       4.2,
		}
	}
	// Keyword as whole word in exactly 4 titles.
	for _, i := range []int{0, 2, 5, 8} {
		apps[i].Title = fmt.Sprintf("App %d fitness tracker", i)
	}

	comp := Compute("fitness", "app-2", apps)

	s.Equal(3, comp.Position)
	s.InDelta(5.79, comp.TrafficScore, 0.01, "log10(3001)/log10(1000001)*10")
	s.InDelta(4.0, comp.KeywordCompetitionScore, 0.001, "4 of 10 mention the keyword")
	s.InDelta(6.30, comp.DifficultyScore, 0.01, "0.4*8.4 + 0.3*5.79 + 0.3*4.0")
	s.InDelta(8.42, comp.PositionScore, 0.01, "10 - log2(3)")
	s.InDelta(5.30, comp.RankingReward, 0.01, "(8.42/10)*(6.30/10)*10")
	s.InDelta(6.58, comp.Overall, 0.01, "0.3*5.79 + 0.3*8.42 + 0.2*6.30 + 0.2*5.30")
}

func (s *ComputeSuite) TestCompute_GoodScenarios_TopRankedApp() {
	apps := makeApps(10, 1000, 4.0)

	comp := Compute("untracked keyword", "app-0", apps)

	s.Equal(1, comp.Position)
	s.InDelta(10.0, comp.PositionScore, 0.001, "rank 1 scores 10")
}

func (s *ComputeSuite) TestCompute_GoodScenarios_OnlyTopTenCount() {
	// Results beyond the top window do not move the traffic signal.
	apps := makeApps(10, 1000, 4.0)
	withTail := append(makeApps(10, 1000, 4.0), makeApps(90, 999999, 5.0)...)

	base := Compute("keyword", "absent", apps)
	tailed := Compute("keyword", "absent", withTail)

	s.Equal(base.TrafficScore, tailed.TrafficScore)
	s.Equal(base.DifficultyScore, tailed.DifficultyScore)
}

// =============================================================================
// BAD SCENARIOS - Edge cases and error conditions
// =============================================================================

func (s *ComputeSuite) TestCompute_BadScenarios_EmptyResults() {
	comp := Compute("keyword", "app-1", nil)

	s.Equal(-1, comp.Position)
	s.Zero(comp.TrafficScore)
	s.Zero(comp.DifficultyScore)
	s.Zero(comp.Overall)
}

func (s *ComputeSuite) TestCompute_BadScenarios_AppAbsent() {
	apps := makeApps(10, 1000, 4.0)

	comp := Compute("keyword", "not-in-results", apps)

	s.Equal(-1, comp.Position)
	s.Zero(comp.PositionScore, "unranked scores 0 position")
	s.Zero(comp.RankingReward)
	s.Positive(comp.TrafficScore, "traffic is independent of rank")
}

func (s *ComputeSuite) TestCompute_BadScenarios_ZeroReviews() {
	apps := makeApps(10, 0, 0)

	comp := Compute("keyword", "app-0", apps)

	s.Zero(comp.TrafficScore, "zero reviews means zero traffic")
}

// =============================================================================
// EDGE CASES - Boundary conditions
// =============================================================================

func (s *ComputeSuite) TestCompute_EdgeCases_TrafficMonotonicAndBounded() {
	prev := -1.0
	for _, reviews := range []int{0, 10, 1000, 100000, 1000000, 50000000} {
		comp := Compute("keyword", "absent", makeApps(10, reviews, 4.0))
		s.GreaterOrEqual(comp.TrafficScore, prev, "traffic never decreases with reviews")
		s.GreaterOrEqual(comp.TrafficScore, 0.0)
		s.LessOrEqual(comp.TrafficScore, 10.0)
		prev = comp.TrafficScore
	}
}

func (s *ComputeSuite) TestCompute_EdgeCases_PositionScoreNonIncreasing() {
	apps := makeApps(10, 1000, 4.0)

	prev := 11.0
	for pos := 1; pos <= 10; pos++ {
		comp := Compute("keyword", fmt.Sprintf("app-%d", pos-1), apps)
		s.Equal(pos, comp.Position)
		s.LessOrEqual(comp.PositionScore, prev)
		prev = comp.PositionScore
	}
}

func (s *ComputeSuite) TestCompute_EdgeCases_DifficultyCapped() {
	apps := makeApps(10, 100000000, 5.0)
	for i := range apps {
		apps[i].Title = "keyword everywhere"
	}

	comp := Compute("keyword", "absent", apps)

	s.LessOrEqual(comp.DifficultyScore, 10.0)
	s.LessOrEqual(comp.TrafficScore, 10.0)
}

func (s *ComputeSuite) TestCompute_EdgeCases_WholeWordMatching() {
	apps := makeApps(10, 1000, 4.0)
	// "run" embedded in "runner" must not count as a mention.
	apps[0].Title = "Best Runner Tracker"
	apps[1].Title = "Run Keeper"

	comp := Compute("run", "absent", apps)

	s.InDelta(1.0, comp.KeywordCompetitionScore, 0.001, "only the whole-word mention counts")
}

func (s *ComputeSuite) TestCompute_EdgeCases_CJKSubstringFallback() {
	apps := makeApps(10, 1000, 4.0)
	apps[0].Title = "写真編集アプリ"

	comp := Compute("写真", "absent", apps)

	s.InDelta(1.0, comp.KeywordCompetitionScore, 0.001, "ideograph keywords match by substring")
}
