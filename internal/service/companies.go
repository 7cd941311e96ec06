package service

import (
	"context"
	"strings"

	apperrors "earnings-tracker/internal/errors"
	"earnings-tracker/internal/models"
	"earnings-tracker/internal/store"
)

// SearchLimit caps company search results.
const SearchLimit = 10

// seedCompanies is the default watch list of large caps.
var seedCompanies = []models.Company{
	// Technology
	{Symbol: "AAPL", Name: "Apple Inc.", Exchange: models.NASDAQ, Sector: "Technology", IsSP500: true},
	{Symbol: "MSFT", Name: "Microsoft Corporation", Exchange: models.NASDAQ, Sector: "Technology", IsSP500: true},
	{Symbol: "GOOGL", Name: "Alphabet Inc. Class A", Exchange: models.NASDAQ, Sector: "Technology", IsSP500: true},
	{Symbol: "AMZN", Name: "Amazon.com Inc.", Exchange: models.NASDAQ, Sector: "Consumer Cyclical", IsSP500: true},
	{Symbol: "META", Name: "Meta Platforms Inc.", Exchange: models.NASDAQ, Sector: "Technology", IsSP500: true},
	{Symbol: "NVDA", Name: "NVIDIA Corporation", Exchange: models.NASDAQ, Sector: "Technology", IsSP500: true},
	{Symbol: "AVGO", Name: "Broadcom Inc.", Exchange: models.NASDAQ, Sector: "Technology", IsSP500: true},
	{Symbol: "TSLA", Name: "Tesla, Inc.", Exchange: models.NASDAQ, Sector: "Consumer Cyclical", IsSP500: true},
	{Symbol: "AMD", Name: "Advanced Micro Devices, Inc.", Exchange: models.NASDAQ, Sector: "Technology", IsSP500: true},
	{Symbol: "CRM", Name: "Salesforce Inc.", Exchange: models.NYSE, Sector: "Technology", IsSP500: true},
	{Symbol: "ADBE", Name: "Adobe Inc.", Exchange: models.NASDAQ, Sector: "Technology", IsSP500: true},
	{Symbol: "CSCO", Name: "Cisco Systems Inc.", Exchange: models.NASDAQ, Sector: "Technology", IsSP500: true},
	{Symbol: "INTC", Name: "Intel Corporation", Exchange: models.NASDAQ, Sector: "Technology", IsSP500: true},
	{Symbol: "ORCL", Name: "Oracle Corporation", Exchange: models.NYSE, Sector: "Technology", IsSP500: true},
	{Symbol: "QCOM", Name: "Qualcomm Incorporated", Exchange: models.NASDAQ, Sector: "Technology", IsSP500: true},
	{Symbol: "NFLX", Name: "Netflix Inc.", Exchange: models.NASDAQ, Sector: "Communication Services", IsSP500: true},
	{Symbol: "IBM", Name: "International Business Machines", Exchange: models.NYSE, Sector: "Technology", IsSP500: true},
	{Symbol: "PYPL", Name: "PayPal Holdings Inc.", Exchange: models.NASDAQ, Sector: "Financial Services", IsSP500: true},

	// Finance
	{Symbol: "JPM", Name: "JPMorgan Chase & Co.", Exchange: models.NYSE, Sector: "Financial Services", IsSP500: true},
	{Symbol: "BAC", Name: "Bank of America Corporation", Exchange: models.NYSE, Sector: "Financial Services", IsSP500: true},
	{Symbol: "WFC", Name: "Wells Fargo & Company", Exchange: models.NYSE, Sector: "Financial Services", IsSP500: true},
	{Symbol: "MS", Name: "Morgan Stanley", Exchange: models.NYSE, Sector: "Financial Services", IsSP500: true},
	{Symbol: "GS", Name: "Goldman Sachs Group Inc.", Exchange: models.NYSE, Sector: "Financial Services", IsSP500: true},
	{Symbol: "V", Name: "Visa Inc.", Exchange: models.NYSE, Sector: "Financial Services", IsSP500: true},
	{Symbol: "MA", Name: "Mastercard Incorporated", Exchange: models.NYSE, Sector: "Financial Services", IsSP500: true},
	{Symbol: "BLK", Name: "BlackRock Inc.", Exchange: models.NYSE, Sector: "Financial Services", IsSP500: true},

	// Healthcare
	{Symbol: "JNJ", Name: "Johnson & Johnson", Exchange: models.NYSE, Sector: "Healthcare", IsSP500: true},
	{Symbol: "UNH", Name: "UnitedHealth Group Inc.", Exchange: models.NYSE, Sector: "Healthcare", IsSP500: true},
	{Symbol: "PFE", Name: "Pfizer Inc.", Exchange: models.NYSE, Sector: "Healthcare", IsSP500: true},
	{Symbol: "MRK", Name: "Merck & Co. Inc.", Exchange: models.NYSE, Sector: "Healthcare", IsSP500: true},
	{Symbol: "ABBV", Name: "AbbVie Inc.", Exchange: models.NYSE, Sector: "Healthcare", IsSP500: true},
	{Symbol: "LLY", Name: "Eli Lilly and Company", Exchange: models.NYSE, Sector: "Healthcare", IsSP500: true},

	// Consumer
	{Symbol: "WMT", Name: "Walmart Inc.", Exchange: models.NYSE, Sector: "Consumer Defensive", IsSP500: true},
	{Symbol: "PG", Name: "Procter & Gamble Company", Exchange: models.NYSE, Sector: "Consumer Defensive", IsSP500: true},
	{Symbol: "KO", Name: "The Coca-Cola Company", Exchange: models.NYSE, Sector: "Consumer Defensive", IsSP500: true},
	{Symbol: "PEP", Name: "PepsiCo Inc.", Exchange: models.NASDAQ, Sector: "Consumer Defensive", IsSP500: true},
	{Symbol: "COST", Name: "Costco Wholesale Corporation", Exchange: models.NASDAQ, Sector: "Consumer Defensive", IsSP500: true},
	{Symbol: "MCD", Name: "McDonald's Corporation", Exchange: models.NYSE, Sector: "Consumer Cyclical", IsSP500: true},
	{Symbol: "NKE", Name: "Nike Inc.", Exchange: models.NYSE, Sector: "Consumer Cyclical", IsSP500: true},
	{Symbol: "HD", Name: "The Home Depot Inc.", Exchange: models.NYSE, Sector: "Consumer Cyclical", IsSP500: true},
	{Symbol: "TGT", Name: "Target Corporation", Exchange: models.NYSE, Sector: "Consumer Defensive", IsSP500: true},
	{Symbol: "DIS", Name: "The Walt Disney Company", Exchange: models.NYSE, Sector: "Communication Services", IsSP500: true},

	// Energy, industrials and telecom
	{Symbol: "XOM", Name: "Exxon Mobil Corporation", Exchange: models.NYSE, Sector: "Energy", IsSP500: true},
	{Symbol: "CVX", Name: "Chevron Corporation", Exchange: models.NYSE, Sector: "Energy", IsSP500: true},
	{Symbol: "CAT", Name: "Caterpillar Inc.", Exchange: models.NYSE, Sector: "Industrials", IsSP500: true},
	{Symbol: "BA", Name: "The Boeing Company", Exchange: models.NYSE, Sector: "Industrials", IsSP500: true},
	{Symbol: "VZ", Name: "Verizon Communications Inc.", Exchange: models.NYSE, Sector: "Communication Services", IsSP500: true},
	{Symbol: "T", Name: "AT&T Inc.", Exchange: models.NYSE, Sector: "Communication Services", IsSP500: true},
}

// SeedCompanies returns a copy of the default watch list.
func SeedCompanies() []models.Company {
	out := make([]models.Company, len(seedCompanies))
	copy(out, seedCompanies)
	return out
}

// Seed registers the default watch list and returns how many companies it wrote.
func (s *Service) Seed(ctx context.Context) (int, error) {
	for i, c := range SeedCompanies() {
		if err := s.store.UpsertCompany(ctx, &c); err != nil {
			return i, err
		}
	}
	return len(seedCompanies), nil
}

// AddCompany registers symbol. When name is empty and a provider is
// configured, the company overview fills in the metadata.
func (s *Service) AddCompany(ctx context.Context, symbol, name string, sp500 bool) (*models.Company, error) {
	symbol, err := ValidateSymbol(symbol)
	if err != nil {
		return nil, err
	}

	company := &models.Company{Symbol: symbol, Name: strings.TrimSpace(name), Exchange: models.OTHER, IsSP500: sp500}
	if company.Name == "" && s.provider != nil {
		overview, err := s.provider.Overview(ctx, symbol)
		if err != nil {
			return nil, err
		}
		company = overview
		company.IsSP500 = sp500
	}
	if company.Name == "" {
		company.Name = symbol
	}

	if err := s.store.UpsertCompany(ctx, company); err != nil {
		return nil, err
	}
	s.log.Info().Str("symbol", symbol).Str("name", company.Name).Msg("Company added")
	return s.store.GetCompany(ctx, symbol)
}

// RemoveCompany deletes symbol with its earnings, prices and sync times.
func (s *Service) RemoveCompany(ctx context.Context, symbol string) error {
	symbol, err := ValidateSymbol(symbol)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCompany(ctx, symbol); err != nil {
		return err
	}
	s.log.Info().Str("symbol", symbol).Msg("Company removed")
	return nil
}

// ListCompanies returns registered companies.
func (s *Service) ListCompanies(ctx context.Context, filter store.CompanyFilter) ([]models.Company, error) {
	return s.store.ListCompanies(ctx, filter)
}

// SearchCompanies matches query against symbols and names, best matches first.
func (s *Service) SearchCompanies(ctx context.Context, query string) ([]models.Company, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewValidationError("q", query, "must not be empty")
	}
	return s.store.SearchCompanies(ctx, query, SearchLimit)
}

// GetCompany returns one registered company.
func (s *Service) GetCompany(ctx context.Context, symbol string) (*models.Company, error) {
	return s.store.GetCompany(ctx, models.NormalizeSymbol(symbol))
}
