package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// BERTTokenizer handles BERT-style WordPiece tokenization.
type BERTTokenizer struct {
	vocab    map[string]int
	clsToken int
	sepToken int
	unkToken int
}

// LoadTokenizer reads the vocabulary from a HuggingFace tokenizer.json.
func LoadTokenizer(path string) (*BERTTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tokenizerData struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tokenizerData); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return NewTokenizer(tokenizerData.Model.Vocab)
}

// NewTokenizer builds a tokenizer from a vocabulary that contains the
// [CLS], [SEP] and [UNK] special tokens.
func NewTokenizer(vocab map[string]int) (*BERTTokenizer, error) {
	t := &BERTTokenizer{vocab: vocab}
	for name, dst := range map[string]*int{"[CLS]": &t.clsToken, "[SEP]": &t.sepToken, "[UNK]": &t.unkToken} {
		id, ok := vocab[name]
		if !ok {
			return nil, fmt.Errorf("vocabulary has no %s token", name)
		}
		*dst = id
	}
	return t, nil
}

// Tokenize converts text to token IDs using BERT WordPiece tokenization,
// without the surrounding [CLS]/[SEP].
func (t *BERTTokenizer) Tokenize(text string) []int64 {
	var tokens []int64
	for _, word := range basicSplit(strings.ToLower(text)) {
		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		for _, subword := range t.wordPieceTokenize(word) {
			if id, ok := t.vocab[subword]; ok {
				tokens = append(tokens, int64(id))
			} else {
				tokens = append(tokens, int64(t.unkToken))
			}
		}
	}
	return tokens
}

// basicSplit splits on whitespace and isolates every punctuation rune, so
// "ls -la" becomes ["ls", "-", "la"].
func basicSplit(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

// wordPieceTokenize performs greedy longest-prefix WordPiece tokenization.
func (t *BERTTokenizer) wordPieceTokenize(word string) []string {
	if len(word) == 0 {
		return nil
	}

	var subwords []string
	start := 0
	for start < len(word) {
		end := len(word)
		found := false

		for end > start {
			substr := word[start:end]
			if start > 0 {
				substr = "##" + substr // WordPiece continuation prefix
			}
			if _, ok := t.vocab[substr]; ok {
				subwords = append(subwords, substr)
				start = end
				found = true
				break
			}
			end--
		}

		if !found {
			// BERT maps the whole word to [UNK] when any piece is unknown.
			return []string{"[UNK]"}
		}
	}
	return subwords
}
