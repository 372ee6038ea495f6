package service

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// EvidenceRetriever 词法证据检索：对讲义句子和查询构建 TF-IDF 向量空间，
// 按余弦相似度取 top-k。无状态，同样输入必得同样输出
type EvidenceRetriever struct{}

func NewEvidenceRetriever() *EvidenceRetriever {
	return &EvidenceRetriever{}
}

const (
	DefaultEvidenceTopK     = 3
	DefaultEvidenceMinScore = 0.1
)

var wordRe = regexp.MustCompile(`[a-z]+(?:['-][a-z]+)*`)

// 常见英文停用词，不进入词表
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "been": true, "but": true, "by": true, "can": true, "do": true,
	"does": true, "for": true, "from": true, "had": true, "has": true,
	"have": true, "he": true, "her": true, "his": true, "how": true, "i": true,
	"if": true, "in": true, "into": true, "is": true, "it": true, "its": true,
	"may": true, "more": true, "most": true, "no": true, "not": true,
	"of": true, "on": true, "or": true, "our": true, "she": true, "so": true,
	"some": true, "such": true, "than": true, "that": true, "the": true,
	"their": true, "them": true, "then": true, "there": true, "these": true,
	"they": true, "this": true, "those": true, "to": true, "was": true,
	"we": true, "were": true, "what": true, "when": true, "where": true,
	"which": true, "who": true, "why": true, "will": true, "with": true,
	"would": true, "you": true, "your": true,
}

// Retrieve 返回与 query 最相似的至多 topK 条讲义句子，分数必须超过
// minScore，按分数降序；同分保持原文出现顺序。无命中返回空切片，不报错
func (r *EvidenceRetriever) Retrieve(lectureText, query string, topK int, minScore float64) []string {
	if strings.TrimSpace(lectureText) == "" || strings.TrimSpace(query) == "" {
		return nil
	}
	if topK <= 0 {
		topK = DefaultEvidenceTopK
	}

	sentences := SplitSentences(lectureText)
	if len(sentences) == 0 {
		return nil
	}

	docs := make([][]string, 0, len(sentences)+1)
	for _, s := range sentences {
		docs = append(docs, Tokenize(s))
	}
	docs = append(docs, Tokenize(query))

	vectors := tfidfVectors(docs)
	queryVec := vectors[len(vectors)-1]

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, 0, len(sentences))
	for i := range sentences {
		ranked = append(ranked, scored{index: i, score: dot(queryVec, vectors[i])})
	}

	// 稳定排序：同分时先出现的句子优先
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	results := make([]string, 0, topK)
	for _, s := range ranked {
		if len(results) >= topK {
			break
		}
		if s.score > minScore {
			results = append(results, sentences[s.index])
		}
	}
	return results
}

// SplitSentences 按终止标点 [.!?] 后跟空白切句，丢弃空白段
func SplitSentences(text string) []string {
	var sentences []string
	var sb strings.Builder
	runes := []rune(text)

	flush := func() {
		s := strings.TrimSpace(sb.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		sb.Reset()
	}

	for i := 0; i < len(runes); i++ {
		sb.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			// 吞掉连续终止符
			for i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?') {
				i++
				sb.WriteRune(runes[i])
			}
			if i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\t' || runes[i+1] == '\n' || runes[i+1] == '\r') {
				flush()
			}
		}
	}
	flush()
	return sentences
}

// Tokenize 小写化后按 字母/撇号/连字符 正则切词并去停用词
func Tokenize(text string) []string {
	raw := wordRe.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if !stopWords[t] {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// tfidfVectors 平滑 idf + L2 归一化，归一化后点积即余弦相似度
func tfidfVectors(docs [][]string) []map[string]float64 {
	n := float64(len(docs))

	df := map[string]float64{}
	for _, doc := range docs {
		seen := map[string]bool{}
		for _, t := range doc {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}

	idf := make(map[string]float64, len(df))
	for t, f := range df {
		idf[t] = math.Log((1+n)/(1+f)) + 1
	}

	vectors := make([]map[string]float64, len(docs))
	for i, doc := range docs {
		tf := map[string]float64{}
		for _, t := range doc {
			tf[t]++
		}
		vec := make(map[string]float64, len(tf))
		var norm float64
		for t, f := range tf {
			w := f * idf[t]
			vec[t] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for t := range vec {
				vec[t] /= norm
			}
		}
		vectors[i] = vec
	}
	return vectors
}

func dot(a, b map[string]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for t, w := range a {
		sum += w * b[t]
	}
	return sum
}
