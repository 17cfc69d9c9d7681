package llm

// price is USD per million tokens.
type price struct {
	in, out float64
}

// Only models a provider advertises through Models() are listed. Anything
// else, including local models, is logged at zero cost.
var prices = map[string]price{
	"gemini-2.0-flash": {0.10, 0.40},
	"gemini-1.5-flash": {0.075, 0.30},
	"gemini-1.5-pro":   {1.25, 5.00},

	"gpt-4o":      {2.50, 10.00},
	"gpt-4o-mini": {0.15, 0.60},
	"gpt-4-turbo": {10.00, 30.00},

	"claude-sonnet-4-20250514": {3.00, 15.00},
	"claude-opus-4-20250514":   {15.00, 75.00},
	"claude-3-haiku-20240307":  {0.25, 1.25},
}

// CalculateCost returns the USD cost of one call, or 0 for an unpriced model.
// Vision input is billed by the providers as input tokens, so slide images
// are already included in inputTokens.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	p, ok := prices[model]
	if !ok {
		return 0
	}
	return (float64(inputTokens)*p.in + float64(outputTokens)*p.out) / 1e6
}
