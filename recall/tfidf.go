package recall

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// tokenPattern 匹配两个及以上字母/数字/下划线组成的词
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// SparseVector 是按 Index 升序排列的稀疏向量
type SparseVector struct {
	Index []int
	Value []float64
}

// Dot 计算两个稀疏向量的点积（两者索引均升序）
func (v SparseVector) Dot(o SparseVector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(v.Index) && j < len(o.Index) {
		switch {
		case v.Index[i] == o.Index[j]:
			sum += v.Value[i] * o.Value[j]
			i++
			j++
		case v.Index[i] < o.Index[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// TFIDF 是词频-逆文档频率向量器。
//
//   - 分词：小写后按 tokenPattern 切分，去除停用词
//   - tf：原始词频
//   - idf：ln((1+n)/(1+df)) + 1（平滑）
//   - 每行 L2 归一化，余弦相似度即点积
type TFIDF struct {
	StopWords  []string
	Vocabulary []string // 升序
	IDF        []float64

	stop  map[string]struct{}
	terms map[string]int
}

// NewTFIDF 创建向量器；stopWords 为 nil 时使用 EnglishStopWords。
func NewTFIDF(stopWords []string) *TFIDF {
	if stopWords == nil {
		stopWords = EnglishStopWords
	}
	v := &TFIDF{StopWords: append([]string(nil), stopWords...)}
	v.init()
	return v
}

func (v *TFIDF) init() {
	v.stop = make(map[string]struct{}, len(v.StopWords))
	for _, w := range v.StopWords {
		v.stop[strings.ToLower(w)] = struct{}{}
	}
	v.terms = make(map[string]int, len(v.Vocabulary))
	for i, t := range v.Vocabulary {
		v.terms[t] = i
	}
}

// Tokenize 返回去除停用词后的词序列
func (v *TFIDF) Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if _, ok := v.stop[tok]; ok {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// FitTransform 在 docs 上学习词表与 idf，并返回每篇文档的归一化向量。
func (v *TFIDF) FitTransform(docs []string) []SparseVector {
	tokens := make([][]string, len(docs))
	df := make(map[string]int)
	for i, d := range docs {
		tokens[i] = v.Tokenize(d)
		seen := make(map[string]struct{}, len(tokens[i]))
		for _, t := range tokens[i] {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}

	v.Vocabulary = make([]string, 0, len(df))
	for t := range df {
		v.Vocabulary = append(v.Vocabulary, t)
	}
	sort.Strings(v.Vocabulary)

	n := float64(len(docs))
	v.IDF = make([]float64, len(v.Vocabulary))
	for i, t := range v.Vocabulary {
		v.IDF[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}
	v.init()

	out := make([]SparseVector, len(docs))
	for i, toks := range tokens {
		out[i] = v.vectorize(toks)
	}
	return out
}

// Transform 使用已学习的词表向量化文本，未登录词被忽略。
func (v *TFIDF) Transform(text string) SparseVector {
	return v.vectorize(v.Tokenize(text))
}

func (v *TFIDF) vectorize(tokens []string) SparseVector {
	counts := make(map[int]float64, len(tokens))
	for _, t := range tokens {
		if idx, ok := v.terms[t]; ok {
			counts[idx]++
		}
	}
	vec := SparseVector{
		Index: make([]int, 0, len(counts)),
		Value: make([]float64, 0, len(counts)),
	}
	for idx := range counts {
		vec.Index = append(vec.Index, idx)
	}
	sort.Ints(vec.Index)

	var norm float64
	for _, idx := range vec.Index {
		w := counts[idx] * v.IDF[idx]
		vec.Value = append(vec.Value, w)
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec.Value {
			vec.Value[i] /= norm
		}
	}
	return vec
}
