package models

import "time"

// Institutional signal labels. The Chinese tags are the canonical wire
// values; SignalTag carries the semantic equivalent (see DESIGN notes on
// localized labels).
const (
	InstitutionalAccumulating = "加碼"
	InstitutionalReducing     = "減碼"
	InstitutionalFlat         = "持平"

	SignalTagAccumulating = "accumulating"
	SignalTagReducing     = "reducing"
	SignalTagFlat         = "flat"
)

// InstitutionalSnapshot summarizes 13F ownership around the baseline.
type InstitutionalSnapshot struct {
	AsOf    string               `json:"as_of"` // Quarter end date of the winning 13F snapshot
	Signal  *InstitutionalSignal `json:"signal,omitempty"`
	Top     []HolderRow          `json:"top_holders,omitempty"`
	Summary string               `json:"summary,omitempty"`
	Metrics *HolderMetrics       `json:"metrics,omitempty"`

	Insider        *InsiderActivity `json:"insider_activity,omitempty"`
	AnalystActions *AnalystActions  `json:"analyst_actions,omitempty"`

	Error string `json:"error,omitempty"`
}

// InstitutionalSignal is the net-flow classification.
// Label is 加碼 when NetShares > 0, 減碼 when < 0, 持平 when == 0.
type InstitutionalSignal struct {
	Label     string `json:"label"`
	Tag       string `json:"tag"`
	NetShares int64  `json:"net_shares"`
}

// HolderRow is one normalized 13F position, largest first.
type HolderRow struct {
	Holder       string  `json:"holder"`
	Shares       int64   `json:"shares"`
	Value        float64 `json:"value"`
	ChangeShares int64   `json:"change_shares"`
	Weight       float64 `json:"weight,omitempty"` // Percent of the holder's portfolio when disclosed
}

// HolderMetrics aggregates the normalized holder rows.
type HolderMetrics struct {
	HolderCount     int     `json:"holder_count"`
	TotalValue      float64 `json:"total_value"`
	TotalShares     int64   `json:"total_shares"`
	QuartersBack    int     `json:"quarters_back"` // 0 = current quarter answered
	ReportedQuarter string  `json:"reported_quarter,omitempty"`
}

// InsiderActivity summarizes officer/director trades in the baseline window.
type InsiderActivity struct {
	BuyCount    int            `json:"buy_count"`
	SellCount   int            `json:"sell_count"`
	BuyShares   int64          `json:"buy_shares"`
	SellShares  int64          `json:"sell_shares"`
	NetShares   int64          `json:"net_shares"`
	Label       string         `json:"label,omitempty"` // Localized, same vocabulary as the 13F signal
	Tag         string         `json:"tag,omitempty"`
	LastTrades  []InsiderTrade `json:"last_trades,omitempty"` // Up to 5, newest first
	WindowStart string         `json:"window_start,omitempty"`
	WindowEnd   string         `json:"window_end,omitempty"`
}

// InsiderTrade is one reported insider transaction in canonical form.
type InsiderTrade struct {
	Date    string  `json:"date"`
	Name    string  `json:"name"`
	Title   string  `json:"title,omitempty"`
	Type    string  `json:"type"` // buy | sell | other
	Shares  int64   `json:"shares"`
	Price   float64 `json:"price,omitempty"`
	FiledAt string  `json:"filed_at,omitempty"`
}

// AnalystActions counts broker moves in short windows around the baseline.
type AnalystActions struct {
	Upgrades7d    int       `json:"upgrades_7d"`
	Downgrades7d  int       `json:"downgrades_7d"`
	Upgrades30d   int       `json:"upgrades_30d"`
	Downgrades30d int       `json:"downgrades_30d"`
	AsOf          time.Time `json:"as_of,omitempty"`
}
