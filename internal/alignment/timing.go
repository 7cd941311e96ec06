package alignment

import "earnings-tracker/internal/models"

// knownTimings lists large caps whose report time is stable quarter to quarter.
// It fills in timing when the provider omits it.
var knownTimings = map[string]models.Timing{
	// Technology
	"AAPL": models.TimingAMC, "MSFT": models.TimingAMC, "GOOGL": models.TimingAMC,
	"GOOG": models.TimingAMC, "META": models.TimingAMC, "NVDA": models.TimingAMC,
	"AVGO": models.TimingAMC, "CSCO": models.TimingAMC, "ADBE": models.TimingAMC,
	"ORCL": models.TimingAMC, "NFLX": models.TimingAMC, "CRM": models.TimingAMC,
	"AMZN": models.TimingAMC, "TSLA": models.TimingAMC, "AMD": models.TimingAMC,
	"INTC": models.TimingAMC, "IBM": models.TimingAMC, "QCOM": models.TimingAMC,
	"V": models.TimingAMC, "MA": models.TimingAMC, "COST": models.TimingAMC,
	"NKE": models.TimingAMC,

	// Retail and consumer
	"TGT": models.TimingBMO, "WMT": models.TimingBMO, "PG": models.TimingBMO,
	"KO": models.TimingBMO, "PEP": models.TimingBMO, "MCD": models.TimingBMO,
	"HD": models.TimingBMO, "LOW": models.TimingBMO, "TJX": models.TimingBMO,
	"DIS": models.TimingBMO, "PM": models.TimingBMO, "BUD": models.TimingBMO,

	// Financials
	"JPM": models.TimingBMO, "BAC": models.TimingBMO, "WFC": models.TimingBMO,
	"GS": models.TimingBMO, "MS": models.TimingBMO, "BLK": models.TimingBMO,

	// Healthcare
	"JNJ": models.TimingBMO, "UNH": models.TimingBMO, "PFE": models.TimingBMO,
	"MRK": models.TimingBMO, "ABBV": models.TimingBMO, "LLY": models.TimingBMO,
	"TMO": models.TimingBMO, "ABT": models.TimingBMO, "DHR": models.TimingBMO,

	// Energy and industrials
	"CVX": models.TimingBMO, "XOM": models.TimingBMO, "COP": models.TimingBMO,
	"SLB": models.TimingBMO, "CAT": models.TimingBMO, "BA": models.TimingBMO,
	"UPS": models.TimingBMO, "GE": models.TimingBMO, "HON": models.TimingBMO,
	"MMM": models.TimingBMO, "RTX": models.TimingBMO,

	// Telecom and media
	"CMCSA": models.TimingBMO, "T": models.TimingBMO, "VZ": models.TimingBMO,
}

// KnownTiming returns the usual report time for symbol, or TNS when unknown.
func KnownTiming(symbol string) models.Timing {
	if t, ok := knownTimings[models.NormalizeSymbol(symbol)]; ok {
		return t
	}
	return models.TimingTNS
}

// ResolveTiming prefers the timing reported by the provider and falls back to
// the known-timing table.
func ResolveTiming(symbol string, reported models.Timing) models.Timing {
	if reported.Known() {
		return reported
	}
	return KnownTiming(symbol)
}
