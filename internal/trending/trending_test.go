package trending

import (
	"testing"

	"heatsight/internal/models"
)

// Scenario 6: a keyword-type word in 2 sources with count 5 is excluded
// (needs >=3 sources); the same word as a phrase in 2 sources with count 2
// is included.
func TestPassesThreshold_ScenarioKeywordVsPhrase(t *testing.T) {
	keywordAggTwoSources := &keywordAgg{
		count:   5,
		sources: map[string]bool{"weibo": true, "zhihu": true},
		kwType:  models.KeywordTypeKeyword,
	}
	if passesThreshold(keywordAggTwoSources) {
		t.Fatalf("keyword with only 2 sources should not pass threshold (needs >=3)")
	}

	phraseAggTwoSources := &keywordAgg{
		count:   2,
		sources: map[string]bool{"weibo": true, "zhihu": true},
		kwType:  models.KeywordTypePhrase,
	}
	if !passesThreshold(phraseAggTwoSources) {
		t.Fatalf("phrase with 2 sources and count 2 should pass threshold")
	}
}

func TestPassesThreshold_Topic(t *testing.T) {
	oneSource := &keywordAgg{count: 3, sources: map[string]bool{"weibo": true}, kwType: models.KeywordTypeTopic}
	if passesThreshold(oneSource) {
		t.Fatalf("topic with only 1 source should not pass threshold (needs >=2)")
	}

	twoSources := &keywordAgg{count: 1, sources: map[string]bool{"weibo": true, "zhihu": true}, kwType: models.KeywordTypeTopic}
	if !passesThreshold(twoSources) {
		t.Fatalf("topic with 2 sources should pass threshold regardless of count")
	}
}

func TestPassesThreshold_PhraseRequiresBothCountAndSources(t *testing.T) {
	lowCount := &keywordAgg{count: 1, sources: map[string]bool{"weibo": true, "zhihu": true}, kwType: models.KeywordTypePhrase}
	if passesThreshold(lowCount) {
		t.Fatalf("phrase with count 1 should not pass threshold (needs count >=2)")
	}
}
