// Package tokenizer provides language-aware (CJK vs Latin) tokenization and
// keyword/phrase/topic extraction, grounded on the original HeatSight
// Python service's jieba+TextRank (CJK) and frequency-based (Latin) paths.
package tokenizer

import (
	"sort"
	"strings"
	"unicode"

	"heatsight/internal/models"
)

var cjkStopwords = map[string]bool{
	"的": true, "了": true, "和": true, "是": true, "就": true, "都": true,
	"而": true, "及": true, "与": true, "着": true, "或": true, "一个": true,
	"没有": true, "我们": true, "你们": true, "他们": true, "它们": true,
	"这个": true, "那个": true, "这些": true, "那些": true, "这样": true,
	"那样": true, "之": true, "的话": true, "说": true, "时候": true,
	"显示": true, "一些": true, "现在": true, "已经": true, "什么": true,
	"只是": true, "还是": true, "可以": true, "这": true, "那": true,
	"又": true, "也": true, "有": true, "到": true, "很": true, "来": true,
	"去": true, "把": true, "被": true, "让": true, "但": true, "但是": true,
	"然后": true, "所以": true, "因为": true, "由于": true, "因此": true,
	"如果": true, "虽然": true, "于是": true, "一直": true, "并": true,
	"并且": true, "不过": true, "不": true, "没": true, "一": true, "在": true,
	"中": true, "为": true, "以": true, "能": true, "要": true,
}

var latinStopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true,
	"he": true, "in": true, "is": true, "it": true, "its": true, "of": true,
	"on": true, "that": true, "the": true, "to": true, "was": true,
	"were": true, "will": true, "with": true,
}

// IsCJK reports whether 30% or more of text's runes are CJK ideographs.
func IsCJK(text string) bool {
	if text == "" {
		return false
	}
	var total, cjk int
	for _, r := range text {
		total++
		if unicode.Is(unicode.Han, r) || (r >= 0x4e00 && r <= 0x9fff) {
			cjk++
		}
	}
	if total == 0 {
		return false
	}
	return float64(cjk)/float64(total) >= 0.3
}

// splitCJK splits CJK text into non-overlapping two-character chunks within
// each run of Han ideographs, approximating jieba's word segmentation (no
// CJK word-segmentation library is available in the ecosystem pack, so this
// dictionary-free bigram chunking is the best grounded substitute: see
// DESIGN.md). A run's trailing odd character becomes its own single-rune
// token; callers relying on the spec's "length >= 2" cutoff filter it out.
func splitCJK(text string) []string {
	var tokens []string
	var run []rune
	var buf strings.Builder
	flushRun := func() {
		for i := 0; i < len(run); i += 2 {
			if i+1 < len(run) {
				tokens = append(tokens, string(run[i:i+2]))
			} else {
				tokens = append(tokens, string(run[i]))
			}
		}
		run = run[:0]
	}
	flushBuf := func() {
		if buf.Len() > 0 {
			tokens = append(tokens, buf.String())
			buf.Reset()
		}
	}
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			flushBuf()
			run = append(run, r)
		} else if unicode.IsSpace(r) || unicode.IsPunct(r) {
			flushRun()
			flushBuf()
		} else {
			flushRun()
			buf.WriteRune(r)
		}
	}
	flushRun()
	flushBuf()
	return tokens
}

func splitLatin(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return fields
}

// Tokenize splits text per-language and removes stopwords and tokens below
// the per-language minimum length (2 for CJK, 3 for Latin).
func Tokenize(text string) []string {
	var raw []string
	minLen := 3
	stop := latinStopwords
	if IsCJK(text) {
		raw = splitCJK(text)
		minLen = 2
		stop = cjkStopwords
	} else {
		raw = splitLatin(text)
	}

	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if stop[tok] {
			continue
		}
		if len([]rune(tok)) < minLen {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// TokenSet returns the deduplicated token set for a title, used by the
// Jaccard similarity component.
func TokenSet(title string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range Tokenize(title) {
		set[tok] = true
	}
	return set
}

// textRank ranks tokens with a tiny co-occurrence-graph algorithm in the
// spirit of jieba.analyse.textrank: edges between tokens within a window,
// scores propagated iteratively, no damping-factor tuning beyond the
// standard 0.85 used by the reference implementation's jieba default.
func textRank(tokens []string, topK int) []struct {
	Word   string
	Weight float64
} {
	const damping = 0.85
	const iterations = 10
	const window = 5

	if len(tokens) == 0 {
		return nil
	}

	edges := make(map[string]map[string]float64)
	addEdge := func(a, b string) {
		if a == b {
			return
		}
		if edges[a] == nil {
			edges[a] = make(map[string]float64)
		}
		edges[a][b]++
		if edges[b] == nil {
			edges[b] = make(map[string]float64)
		}
		edges[b][a]++
	}

	order := make([]string, 0)
	seen := make(map[string]bool)
	for i, tok := range tokens {
		if !seen[tok] {
			seen[tok] = true
			order = append(order, tok)
		}
		for j := i + 1; j < len(tokens) && j <= i+window; j++ {
			addEdge(tok, tokens[j])
		}
	}

	score := make(map[string]float64, len(order))
	for _, w := range order {
		score[w] = 1.0
	}

	for it := 0; it < iterations; it++ {
		next := make(map[string]float64, len(order))
		for _, w := range order {
			sum := 0.0
			for nb, weight := range edges[w] {
				var degree float64
				for _, ww := range edges[nb] {
					degree += ww
				}
				if degree == 0 {
					continue
				}
				sum += weight / degree * score[nb]
			}
			next[w] = (1 - damping) + damping*sum
		}
		score = next
	}

	type pair struct {
		Word   string
		Weight float64
	}
	pairs := make([]pair, 0, len(order))
	for _, w := range order {
		pairs = append(pairs, pair{w, score[w]})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Weight > pairs[j].Weight })
	if topK > 0 && len(pairs) > topK {
		pairs = pairs[:topK]
	}

	result := make([]struct {
		Word   string
		Weight float64
	}, len(pairs))
	for i, p := range pairs {
		result[i] = struct {
			Word   string
			Weight float64
		}{p.Word, p.Weight}
	}
	return result
}

// detectTopic applies spec §4.D.3: if the title contains a fullwidth or
// ASCII colon, the prefix (if 4-20 characters long) is a topic keyword.
func detectTopic(title string) (models.Keyword, bool) {
	idx := strings.IndexAny(title, ":：")
	if idx < 0 {
		return models.Keyword{}, false
	}
	prefix := strings.TrimSpace(title[:idx])
	n := len([]rune(prefix))
	if n < 4 || n > 20 {
		return models.Keyword{}, false
	}
	return models.Keyword{Word: prefix, Weight: 1.0, Type: models.KeywordTypeTopic}, true
}

// cjkPhrases builds bigram phrases from adjacent title tokens of length >=2
// (in runes), keeping phrases of 4-8 characters, per spec §4.D.2.
func cjkPhrases(titleTokens []string) []string {
	var phrases []string
	for i := 0; i < len(titleTokens)-1; i++ {
		a, b := titleTokens[i], titleTokens[i+1]
		if len([]rune(a)) > 1 && len([]rune(b)) > 1 {
			phrase := a + b
			n := len([]rune(phrase))
			if n >= 4 && n <= 8 {
				phrases = append(phrases, phrase)
			}
		}
	}
	return phrases
}

// Extract implements spec §4.D: title is weighted by triplication, body is
// appended once; CJK text is TextRank-ranked plus bigram phrases and
// colon-topic detection; Latin text is frequency-ranked tokens and bigrams.
func Extract(title, body string) []models.Keyword {
	text := title + " " + title + " " + title + " " + body

	var result []models.Keyword

	if IsCJK(text) {
		allTokens := Tokenize(text)
		ranked := textRank(allTokens, 10)

		titleTokens := splitCJK(title)
		phrases := cjkPhrases(titleTokens)

		weightOf := make(map[string]float64, len(ranked))
		for _, r := range ranked {
			weightOf[r.Word] = r.Weight
		}

		for _, r := range ranked {
			if cjkStopwords[r.Word] {
				continue
			}
			result = append(result, models.Keyword{Word: r.Word, Weight: r.Weight, Type: models.KeywordTypeKeyword})
		}

		if len(phrases) > 5 {
			phrases = phrases[:5]
		}
		for _, phrase := range phrases {
			var phraseWeight float64
			for word, w := range weightOf {
				if strings.Contains(phrase, word) {
					phraseWeight += w
				}
			}
			if phraseWeight == 0 {
				phraseWeight = 0.5
			}
			result = append(result, models.Keyword{Word: phrase, Weight: phraseWeight, Type: models.KeywordTypePhrase})
		}

		if topic, ok := detectTopic(title); ok {
			result = append(result, topic)
		}
	} else {
		tokens := Tokenize(text)
		freq := make(map[string]int, len(tokens))
		for _, t := range tokens {
			freq[t]++
		}
		total := len(tokens)

		var phrases []string
		for i := 0; i < len(tokens)-1; i++ {
			if len(tokens[i]) > 2 && len(tokens[i+1]) > 2 {
				phrases = append(phrases, tokens[i]+" "+tokens[i+1])
			}
		}
		phraseFreq := make(map[string]int, len(phrases))
		for _, p := range phrases {
			phraseFreq[p]++
		}

		type wc struct {
			word  string
			count int
		}
		words := make([]wc, 0, len(freq))
		for w, c := range freq {
			words = append(words, wc{w, c})
		}
		sort.Slice(words, func(i, j int) bool { return words[i].count > words[j].count })
		if len(words) > 5 {
			words = words[:5]
		}
		for _, w := range words {
			if total == 0 {
				continue
			}
			result = append(result, models.Keyword{Word: w.word, Weight: float64(w.count) / float64(total), Type: models.KeywordTypeKeyword})
		}

		phraseList := make([]wc, 0, len(phraseFreq))
		for p, c := range phraseFreq {
			phraseList = append(phraseList, wc{p, c})
		}
		sort.Slice(phraseList, func(i, j int) bool { return phraseList[i].count > phraseList[j].count })
		if len(phraseList) > 3 {
			phraseList = phraseList[:3]
		}
		for _, p := range phraseList {
			if total == 0 {
				continue
			}
			result = append(result, models.Keyword{Word: p.word, Weight: float64(p.count) / float64(total), Type: models.KeywordTypePhrase})
		}
	}

	return result
}
