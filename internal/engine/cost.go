package engine

// CostAccumulator keeps running token usage and estimated spend for one
// run. Only the single loop owning the batch writes to it, so no locking
// is required.
type CostAccumulator struct {
	InputTokens   int
	OutputTokens  int
	EstimatedCost float64
	Items         int
}

// Add records one generation call's usage
func (a *CostAccumulator) Add(inputTokens, outputTokens int, cost float64) {
	a.InputTokens += inputTokens
	a.OutputTokens += outputTokens
	a.EstimatedCost += cost
	a.Items++
}

// AverageCost returns the mean cost per recorded item
func (a *CostAccumulator) AverageCost() float64 {
	if a.Items == 0 {
		return 0
	}
	return a.EstimatedCost / float64(a.Items)
}
