package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ModelsSuite tests the shared domain model helpers.
type ModelsSuite struct {
	suite.Suite
}

func TestModelsSuite(t *testing.T) {
	suite.Run(t, new(ModelsSuite))
}

// =============================================================================
// GOOD SCENARIOS - Expected normal operations
// =============================================================================

func (s *ModelsSuite) TestKeywordList_GoodScenarios_SplitsOnCommas() {
	loc := AppLocalization{Keywords: "running, cycling,step counter"}
	s.Equal([]string{"running", "cycling", "step counter"}, loc.KeywordList())
}

func (s *ModelsSuite) TestKeywordList_GoodScenarios_FullWidthCommas() {
	loc := AppLocalization{Keywords: "ランニング，サイクリング"}
	s.Equal([]string{"ランニング", "サイクリング"}, loc.KeywordList())
}

func (s *ModelsSuite) TestKeywordList_GoodScenarios_MixedDelimitersAndBlanks() {
	loc := AppLocalization{Keywords: "running,, ，cycling ,"}
	s.Equal([]string{"running", "cycling"}, loc.KeywordList())
}

func (s *ModelsSuite) TestJSONStringArray_GoodScenarios_ScanBytes() {
	var arr JSONStringArray
	s.Require().NoError(arr.Scan([]byte(`["a","b"]`)))
	s.Equal(JSONStringArray{"a", "b"}, arr)
}

func (s *ModelsSuite) TestJSONStringArray_GoodScenarios_ScanString() {
	var arr JSONStringArray
	s.Require().NoError(arr.Scan(`["only"]`))
	s.Equal(JSONStringArray{"only"}, arr)
}

func (s *ModelsSuite) TestJSONStringArray_GoodScenarios_ValueRoundTrip() {
	v, err := JSONStringArray{"x", "y"}.Value()
	s.Require().NoError(err)

	var back JSONStringArray
	s.Require().NoError(back.Scan(v))
	s.Equal(JSONStringArray{"x", "y"}, back)
}

func (s *ModelsSuite) TestToAsoKeyword_GoodScenarios_CopiesScoreFields() {
	score := KeywordScore{Keyword: "running", TrafficScore: 7, DifficultyScore: 4, Position: 2, Overall: 6.5, CacheHit: true}

	row := score.ToAsoKeyword("app-1", StoreAppStore, PlatformIOS, "en-US")

	s.Equal("app-1", row.AppID)
	s.Equal(StoreAppStore, row.Store)
	s.Equal(PlatformIOS, row.Platform)
	s.Equal("en-US", row.Locale)
	s.Equal("running", row.Keyword)
	s.Equal(2, row.Position)
	s.InDelta(6.5, row.Overall, 0.001)
}

// =============================================================================
// BAD SCENARIOS - Edge cases and error conditions
// =============================================================================

func (s *ModelsSuite) TestKeywordList_BadScenarios_Empty() {
	s.Empty(AppLocalization{}.KeywordList())
	s.Empty(AppLocalization{Keywords: " , ，"}.KeywordList())
}

func (s *ModelsSuite) TestJSONStringArray_BadScenarios_NilAndEmptySources() {
	var arr JSONStringArray
	s.Require().NoError(arr.Scan(nil))
	s.Nil(arr)

	s.Require().NoError(arr.Scan([]byte{}))
	s.Nil(arr)
}

func (s *ModelsSuite) TestJSONStringArray_BadScenarios_UnsupportedType() {
	var arr JSONStringArray
	err := arr.Scan(42)
	s.Require().Error(err)
	s.Contains(err.Error(), "unsupported type")
}

func (s *ModelsSuite) TestJSONStringArray_BadScenarios_NilValue() {
	var arr JSONStringArray
	v, err := arr.Value()
	s.Require().NoError(err)
	s.Nil(v)
}

func (s *ModelsSuite) TestContentFieldError_BadScenarios_FormatAndMatching() {
	err := NewContentFieldError(FieldTitle, "still %d characters over", 4)
	s.Equal("content generation failed for title: still 4 characters over", err.Error())

	var fieldErr *ContentFieldError
	s.Require().True(errors.As(error(err), &fieldErr))
	s.Equal(FieldTitle, fieldErr.Field)
}
