package model

// RSIRecord is one persisted RSI row.
type RSIRecord struct {
	Code    string  `json:"code"`
	Date    string  `json:"date"`
	RSI     float64 `json:"rsi"`
	AvgGain float64 `json:"avg_gain"`
	AvgLoss float64 `json:"avg_loss"`
}

// MACDRecord is one persisted MACD row.
type MACDRecord struct {
	Code      string  `json:"code"`
	Date      string  `json:"date"`
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// StochasticRecord is one persisted slow-stochastic row.
type StochasticRecord struct {
	Code     string  `json:"code"`
	Date     string  `json:"date"`
	PercentK float64 `json:"percent_k"`
	PercentD float64 `json:"percent_d"`
}

// VolumeRecord is one persisted daily volume row.
type VolumeRecord struct {
	Code   string `json:"code"`
	Date   string `json:"date"`
	Volume int64  `json:"volume"`
	Close  int64  `json:"close"`
}
