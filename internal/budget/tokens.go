package budget

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator estimates the token cost of a text.
type Estimator interface {
	Estimate(text string) int
}

// charsPerToken is the rough English average used by HeuristicEstimator.
const charsPerToken = 4

// HeuristicEstimator charges one token per four characters, rounded up.
type HeuristicEstimator struct{}

// Estimate implements Estimator.
func (HeuristicEstimator) Estimate(text string) int {
	n := utf8.RuneCountInString(text)

	return (n + charsPerToken - 1) / charsPerToken
}

// TiktokenEstimator counts tokens with a BPE encoding such as cl100k_base.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads the named encoding.
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}

	return &TiktokenEstimator{enc: enc}, nil
}

// Estimate implements Estimator.
func (e *TiktokenEstimator) Estimate(text string) int {
	return len(e.enc.Encode(text, nil, nil))
}
