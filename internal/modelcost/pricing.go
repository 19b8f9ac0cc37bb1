// Package modelcost estimates token counts and USD cost for model calls.
package modelcost

import "strings"

// DefaultModel is the fallback price-table entry for unknown models.
const DefaultModel = "gpt-4o"

// Price is USD per 1k tokens.
type Price struct {
	InputPer1K  float64
	OutputPer1K float64
}

// priceTable mirrors published per-model pricing. Unknown models fall back
// to the DefaultModel row so an estimate is always produced.
var priceTable = map[string]Price{
	"gpt-4o":      {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4o-mini": {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"gpt-4.1":     {InputPer1K: 0.002, OutputPer1K: 0.008},
}

// Estimate holds token counts and the derived cost.
type Estimate struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	Model        string  `json:"model"`
}

// EstimateText approximates one token per four characters of text.
func EstimateText(inputText, outputText, model string) Estimate {
	return FromTokens(tokens(inputText), tokens(outputText), model)
}

// FromTokens prices exact token counts, used when the service reports usage.
func FromTokens(inputTokens, outputTokens int64, model string) Estimate {
	name := strings.TrimSpace(model)
	price, ok := priceTable[name]
	if !ok {
		name = DefaultModel
		price = priceTable[DefaultModel]
	}
	cost := float64(inputTokens)/1000*price.InputPer1K + float64(outputTokens)/1000*price.OutputPer1K
	return Estimate{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		Model:        name,
	}
}

func tokens(text string) int64 {
	if text == "" {
		return 0
	}
	return int64((len(text) + 3) / 4)
}
