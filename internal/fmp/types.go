package fmp

import (
	"encoding/json"
	"strings"
	"time"
)

// Wire shapes. Field names follow the vendor's JSON; translation to
// canonical models happens in the method files.

type historicalPriceResponse struct {
	Symbol     string    `json:"symbol"`
	Historical []wireBar `json:"historical"`
}

type wireBar struct {
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adjClose"`
	Volume   int64   `json:"volume"`
}

type wireQuote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Open          float64 `json:"open"`
	DayHigh       float64 `json:"dayHigh"`
	DayLow        float64 `json:"dayLow"`
	YearHigh      float64 `json:"yearHigh"`
	YearLow       float64 `json:"yearLow"`
	PriceAvg50    float64 `json:"priceAvg50"`
	PriceAvg200   float64 `json:"priceAvg200"`
	PreviousClose float64 `json:"previousClose"`
	MarketCap     float64 `json:"marketCap"`
	Volume        int64   `json:"volume"`
	Timestamp     int64   `json:"timestamp"`
}

type wirePriceTargetSummary struct {
	Symbol                    string          `json:"symbol"`
	LastMonth                 int             `json:"lastMonth"`
	LastMonthAvgPriceTarget   float64         `json:"lastMonthAvgPriceTarget"`
	LastQuarter               int             `json:"lastQuarter"`
	LastQuarterAvgPriceTarget float64         `json:"lastQuarterAvgPriceTarget"`
	LastYear                  int             `json:"lastYear"`
	LastYearAvgPriceTarget    float64         `json:"lastYearAvgPriceTarget"`
	AllTime                   int             `json:"allTime"`
	AllTimeAvgPriceTarget     float64         `json:"allTimeAvgPriceTarget"`
	Publishers                json.RawMessage `json:"publishers"`
}

// publisherCount decodes the publishers blob, which arrives either as a
// JSON array or as a stringified array depending on the plan.
func (w *wirePriceTargetSummary) publisherCount() int {
	if len(w.Publishers) == 0 {
		return 0
	}
	var names []string
	if err := json.Unmarshal(w.Publishers, &names); err == nil {
		return len(names)
	}
	var nested string
	if err := json.Unmarshal(w.Publishers, &nested); err == nil {
		if err := json.Unmarshal([]byte(nested), &names); err == nil {
			return len(names)
		}
	}
	return 0
}

type wirePriceTargetConsensus struct {
	Symbol          string   `json:"symbol"`
	TargetHigh      *float64 `json:"targetHigh"`
	TargetLow       *float64 `json:"targetLow"`
	TargetConsensus *float64 `json:"targetConsensus"`
	TargetMedian    *float64 `json:"targetMedian"`
	// Aliases seen on older plans.
	TargetMean *float64 `json:"targetMean"`
	TargetAvg  *float64 `json:"targetAvg"`
}

// mean resolves the consensus mean through the alias chain.
func (w *wirePriceTargetConsensus) mean() *float64 {
	if w.TargetConsensus != nil {
		return w.TargetConsensus
	}
	if w.TargetMean != nil {
		return w.TargetMean
	}
	return w.TargetAvg
}

type wireRating struct {
	Symbol         string  `json:"symbol"`
	Date           string  `json:"date"`
	Rating         string  `json:"rating"`
	RatingScore    float64 `json:"ratingScore"`
	Recommendation string  `json:"ratingRecommendation"`
}

type wireGradeAction struct {
	Symbol         string `json:"symbol"`
	PublishedDate  string `json:"publishedDate"`
	NewGrade       string `json:"newGrade"`
	PreviousGrade  string `json:"previousGrade"`
	GradingCompany string `json:"gradingCompany"`
	Action         string `json:"action"`
}

type wireRecommendationRow struct {
	Symbol     string `json:"symbol"`
	Date       string `json:"date"`
	StrongBuy  int    `json:"analystRatingsStrongBuy"`
	Buy        int    `json:"analystRatingsBuy"`
	Hold       int    `json:"analystRatingsHold"`
	Sell       int    `json:"analystRatingsSell"`
	StrongSell int    `json:"analystRatingsStrongSell"`
}

type wireGradeConsensus struct {
	Symbol     string `json:"symbol"`
	Consensus  string `json:"consensus"`
	StrongBuy  int    `json:"strongBuy"`
	Buy        int    `json:"buy"`
	Hold       int    `json:"hold"`
	Sell       int    `json:"sell"`
	StrongSell int    `json:"strongSell"`
}

type wireEstimate struct {
	Date                       string   `json:"date"`
	EstimatedRevenueAvg        *float64 `json:"estimatedRevenueAvg"`
	EstimatedRevenueHigh       *float64 `json:"estimatedRevenueHigh"`
	EstimatedRevenueLow        *float64 `json:"estimatedRevenueLow"`
	EstimatedEpsAvg            *float64 `json:"estimatedEpsAvg"`
	EstimatedEpsHigh           *float64 `json:"estimatedEpsHigh"`
	EstimatedEpsLow            *float64 `json:"estimatedEpsLow"`
	NumberAnalystsRevenue      int      `json:"numberAnalystEstimatedRevenue"`
	NumberAnalystsEstimatedEps int      `json:"numberAnalystsEstimatedEps"`
}

type wireHolder struct {
	Date                 string  `json:"date"`
	InvestorName         string  `json:"investorName"`
	SharesNumber         int64   `json:"sharesNumber"`
	MarketValue          float64 `json:"marketValue"`
	ChangeInSharesNumber int64   `json:"changeInSharesNumber"`
	Weight               float64 `json:"weight"`
}

type wireInsiderTrade struct {
	Symbol                   string  `json:"symbol"`
	FilingDate               string  `json:"filingDate"`
	TransactionDate          string  `json:"transactionDate"`
	ReportingName            string  `json:"reportingName"`
	TypeOfOwner              string  `json:"typeOfOwner"`
	TransactionType          string  `json:"transactionType"`
	SecuritiesTransacted     int64   `json:"securitiesTransacted"`
	Price                    float64 `json:"price"`
	AcquisitionOrDisposition string  `json:"acquistionOrDisposition"` // Vendor spells it this way
}

// tradeKind maps the A/D flag, falling back to the transaction type prefix.
func (w *wireInsiderTrade) tradeKind() string {
	switch strings.ToUpper(w.AcquisitionOrDisposition) {
	case "A":
		return "buy"
	case "D":
		return "sell"
	}
	switch {
	case strings.HasPrefix(w.TransactionType, "P-"):
		return "buy"
	case strings.HasPrefix(w.TransactionType, "S-"):
		return "sell"
	}
	return "other"
}

type wireTranscript struct {
	Symbol  string `json:"symbol"`
	Quarter int    `json:"quarter"`
	Year    int    `json:"year"`
	Date    string `json:"date"`
	Content string `json:"content"`
}

type wireEconomicEvent struct {
	Date     string   `json:"date"`
	Event    string   `json:"event"`
	Country  string   `json:"country"`
	Impact   string   `json:"impact"`
	Actual   *float64 `json:"actual"`
	Estimate *float64 `json:"estimate"`
	Previous *float64 `json:"previous"`
}

type wireTreasury struct {
	Date   string   `json:"date"`
	Month3 *float64 `json:"month3"`
	Year2  *float64 `json:"year2"`
	Year10 *float64 `json:"year10"`
	Year30 *float64 `json:"year30"`
}

type wireRiskPremium struct {
	Country                string  `json:"country"`
	Continent              string  `json:"continent"`
	TotalEquityRiskPremium float64 `json:"totalEquityRiskPremium"`
}

type wireNews struct {
	Symbol        string `json:"symbol"`
	PublishedDate string `json:"publishedDate"`
	Title         string `json:"title"`
	Site          string `json:"site"`
	Text          string `json:"text"`
	URL           string `json:"url"`
}

type wireFiling struct {
	Symbol       string `json:"symbol"`
	Type         string `json:"type"`
	Link         string `json:"link"`
	FinalLink    string `json:"finalLink"`
	FillingDate  string `json:"fillingDate"` // Vendor spells it this way
	AcceptedDate string `json:"acceptedDate"`
}

type wireETFExposure struct {
	ETFSymbol        string  `json:"etfSymbol"`
	WeightPercentage float64 `json:"weightPercentage"`
}

// parseDate accepts the vendor's date and datetime renderings.
func parseDate(raw string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// dateOnly trims a datetime string to its date part.
func dateOnly(raw string) string {
	if len(raw) >= 10 {
		return raw[:10]
	}
	return raw
}
