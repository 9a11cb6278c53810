package battle

import "time"

// Record is a persisted battle.
type Record struct {
	ID        int64          `json:"id"`
	ModelA    int64          `json:"model1_id"`
	ModelB    int64          `json:"model2_id"`
	WinnerID  *int64         `json:"winner_model_id"`
	Mode      Mode           `json:"battle_type"`
	Config    map[string]any `json:"battle_config"`
	Results   Outcome        `json:"results"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewRecord pairs a request with its outcome.
func NewRecord(req Request, out Outcome) Record {
	cfg := req.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	return Record{
		ModelA:   req.ModelA,
		ModelB:   req.ModelB,
		WinnerID: out.WinnerID,
		Mode:     req.Mode,
		Config:   cfg,
		Results:  out,
	}
}
