package pricing

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"interview-practice/internal/config"
)

const fallbackEncoding = "cl100k_base"

var ErrUnknownModel = errors.New("no price for model")

// Price is the USD cost per one million tokens.
type Price struct {
	Input       float64
	Output      float64
	CachedInput float64
}

// Table maps a model name to its price.
type Table map[string]Price

// DefaultTable returns the built-in prices.
func DefaultTable() Table {
	return TableFromConfig(config.Default().Pricing)
}

// TableFromConfig converts the YAML pricing section.
func TableFromConfig(rows map[string]config.PriceRow) Table {
	table := make(Table, len(rows))
	for model, row := range rows {
		table[model] = Price{Input: row.Input, Output: row.Output, CachedInput: row.CachedInput}
	}
	return table
}

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Estimator counts tokens and prices model calls. It is safe for concurrent use.
type Estimator struct {
	table Table

	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

func NewEstimator(table Table) *Estimator {
	if table == nil {
		table = DefaultTable()
	}
	return &Estimator{
		table:     table,
		encodings: make(map[string]*tiktoken.Tiktoken),
	}
}

// CountTokens returns the number of tokens the model's encoding produces for text.
// Models without a known encoding are counted with cl100k_base.
func (e *Estimator) CountTokens(text, model string) (int, error) {
	if text == "" {
		return 0, nil
	}
	enc, err := e.encoding(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

func (e *Estimator) encoding(model string) (*tiktoken.Tiktoken, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.encodings[model]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("loading %s encoding: %w", fallbackEncoding, err)
		}
	}
	e.encodings[model] = enc
	return enc, nil
}

// EstimateCost prices a call in USD. Cached tokens are part of inputTokens and
// are billed at the cached rate instead of the input rate.
func (e *Estimator) EstimateCost(model string, inputTokens, outputTokens, cachedInputTokens int) (float64, error) {
	price, ok := e.table[model]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownModel, model)
	}

	billable := inputTokens - cachedInputTokens
	if billable < 0 {
		billable = 0
	}

	cost := float64(billable)*price.Input +
		float64(outputTokens)*price.Output +
		float64(cachedInputTokens)*price.CachedInput
	return cost / 1_000_000, nil
}

// Price returns the row for a model.
func (e *Estimator) Price(model string) (Price, bool) {
	p, ok := e.table[model]
	return p, ok
}
