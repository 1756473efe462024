package domain

// DebugAllocation exposes the score components behind one variant's weight.
type DebugAllocation struct {
	VariantID      string  `json:"variant_id"`
	Successes      float64 `json:"successes"`
	Failures       float64 `json:"failures"`
	PosteriorMean  float64 `json:"posterior_mean"`
	AgeDays        float64 `json:"age_days"`
	CTR            float64 `json:"ctr"`
	ROAS           float64 `json:"roas"`
	ProxyWeight    float64 `json:"proxy_weight"`
	Score          float64 `json:"score"`
	Boost          float64 `json:"boost"`
	ProbBest       float64 `json:"prob_best"`
	Weight         float64 `json:"weight"`
	TargetBudget   float64 `json:"target_budget"`
	Fatigued       bool    `json:"fatigued"`
	ShouldKill     bool    `json:"should_kill"`
	ShouldScaleUp  bool    `json:"should_scale_up"`
	InIgnoranceZone bool   `json:"in_ignorance_zone"`
}
