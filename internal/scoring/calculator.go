// Package scoring computes keyword traffic/difficulty/position scores
// from live store search results.
package scoring

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/appagent/aso/internal/appstore"
	"github.com/appagent/aso/internal/config"
	"github.com/appagent/aso/pkg/models"
)

// Scoring constants.
const (
	// TopAppsWindow is how many leading results feed the traffic,
	// rating, and competition signals.
	TopAppsWindow = 10

	// ReviewCeiling normalizes the traffic signal: an average of one
	// million reviews across the top window saturates the score.
	ReviewCeiling = 1_000_000

	// MaxScore is the upper bound of every score component.
	MaxScore = 10.0
)

// Calculator scores keywords against live search results.
type Calculator struct {
	client *appstore.Client
	depth  int
}

// NewCalculator creates a calculator over the given search client.
func NewCalculator(client *appstore.Client) *Calculator {
	return &Calculator{client: client, depth: config.Get().SearchDepth}
}

// ScoreComponents is the breakdown of one keyword score calculation.
type ScoreComponents struct {
	TrafficScore            float64 `json:"traffic_score"`
	KeywordCompetitionScore float64 `json:"keyword_competition_score"`
	DifficultyScore         float64 `json:"difficulty_score"`
	PositionScore           float64 `json:"position_score"`
	RankingReward           float64 `json:"ranking_reward"`
	Overall                 float64 `json:"overall"`
	Position                int     `json:"position"`
}

// ScoreKeyword runs a store search for the keyword scoped to the
// locale's country/language and computes the composite score for the
// given app. Zero results yield all-zero scores with Position -1.
func (c *Calculator) ScoreKeyword(ctx context.Context, localeCode, keyword, appID string) (models.KeywordScore, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))

	result, err := c.client.SearchLocale(ctx, localeCode, keyword, c.depth)
	if err != nil {
		return models.KeywordScore{}, err
	}

	comp := Compute(keyword, appID, result.Apps)
	return models.KeywordScore{
		Keyword:         keyword,
		TrafficScore:    comp.TrafficScore,
		DifficultyScore: comp.DifficultyScore,
		Position:        comp.Position,
		Overall:         comp.Overall,
		CacheHit:        result.CacheHit,
	}, nil
}

// Compute derives all score components from a ranked result list.
//
// The composite rewards keywords that are both attainable and valuable:
// raw traffic (review volume of the leaders), ranking difficulty
// (competitor strength plus keyword saturation), and the app's own
// current rank all contribute, so a merely popular keyword the app can
// never rank for does not dominate.
func Compute(keyword, appID string, apps []models.AppSummary) ScoreComponents {
	if len(apps) == 0 {
		return ScoreComponents{Position: -1}
	}

	position := -1
	for i, app := range apps {
		if app.ID == appID {
			position = i + 1
			break
		}
	}

	topApps := apps
	if len(topApps) > TopAppsWindow {
		topApps = topApps[:TopAppsWindow]
	}

	var reviewSum, ratingSum float64
	mentions := 0
	matcher := wholeWordMatcher(keyword)
	for _, app := range topApps {
		reviewSum += float64(app.Reviews)
		ratingSum += app.Score
		if matcher(app.Title) || matcher(app.Description) {
			mentions++
		}
	}
	avgReviews := reviewSum / float64(len(topApps))
	avgRating := ratingSum / float64(len(topApps))

	// Logarithmic normalization of review volume against the ceiling.
	trafficScore := math.Log10(avgReviews+1) / math.Log10(ReviewCeiling+1) * MaxScore
	trafficScore = math.Min(MaxScore, trafficScore)

	competitionScore := float64(mentions) / float64(len(topApps)) * MaxScore

	difficultyScore := 0.4*(avgRating/5*MaxScore) + 0.3*trafficScore + 0.3*competitionScore
	difficultyScore = math.Min(MaxScore, difficultyScore)

	// Rank 1 scores 10, rank 2 scores 9, decaying logarithmically to 0
	// around rank 1024.
	positionScore := 0.0
	if position > 0 {
		positionScore = math.Max(0, MaxScore-math.Log2(float64(position)))
	}

	// Rewards being both highly ranked and in a high-value niche.
	rankingReward := (positionScore / MaxScore) * (difficultyScore / MaxScore) * MaxScore

	overall := 0.3*trafficScore + 0.3*positionScore + 0.2*difficultyScore + 0.2*rankingReward

	return ScoreComponents{
		TrafficScore:            round2(trafficScore),
		KeywordCompetitionScore: round2(competitionScore),
		DifficultyScore:         round2(difficultyScore),
		PositionScore:           round2(positionScore),
		RankingReward:           round2(rankingReward),
		Overall:                 round2(overall),
		Position:                position,
	}
}

// wholeWordMatcher matches the keyword as a whole word,
// case-insensitively. Scripts without word boundaries (CJK) fall back
// to substring matching since \b never fires between ideographs.
func wholeWordMatcher(keyword string) func(string) bool {
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`)
	if err != nil || !hasWordBoundary(keyword) {
		lower := strings.ToLower(keyword)
		return func(s string) bool {
			return strings.Contains(strings.ToLower(s), lower)
		}
	}
	return re.MatchString
}

// hasWordBoundary reports whether the keyword starts and ends with a
// character the regexp engine treats as a word character.
func hasWordBoundary(keyword string) bool {
	if keyword == "" {
		return false
	}
	isWord := func(r byte) bool {
		return r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
	}
	return isWord(keyword[0]) && isWord(keyword[len(keyword)-1])
}

// round2 rounds to 2 decimals, the precision persisted and displayed.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
