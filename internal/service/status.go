package service

import (
	"context"
	"time"

	"earnings-tracker/internal/models"
	"earnings-tracker/internal/provider"
	"earnings-tracker/internal/resilience"
	"earnings-tracker/internal/store"
	"earnings-tracker/pkg/utils"
)

// Status gathers row counts, the last provider call, the latest sync run,
// the quota circuit state and consistency issues. With checkKey set it also
// checks the API key against the provider, which spends one call.
func (s *Service) Status(ctx context.Context, checkKey bool) (*models.SystemStatus, error) {
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return nil, err
	}

	run, err := s.store.GetLatestSyncRun(ctx)
	if err != nil {
		return nil, err
	}

	issues, err := s.store.ConsistencyIssues(ctx)
	if err != nil {
		return nil, err
	}

	status := &models.SystemStatus{
		Counts:         counts,
		LastProviderAt: s.lastProviderCall(),
		LastSyncRun:    run,
		QuotaCircuit:   string(resilience.CircuitClosed),
		MarketStatus:   utils.MarketStatusAt(s.now()),
		Issues:         issues,
	}
	if s.breaker != nil {
		status.QuotaCircuit = string(s.breaker.State())
	}

	if checkKey && s.provider != nil {
		err := s.provider.Status(ctx)
		healthy := err == nil
		status.ProviderHealthy = &healthy
		if err != nil {
			s.log.Warn().Err(err).Msg("Provider key check failed")
		}
	}

	return status, nil
}

// lastProviderCall prefers this process's monitor and falls back to the
// time persisted by earlier syncs.
func (s *Service) lastProviderCall() time.Time {
	last := s.store.GetLastSync(store.SyncKey(store.SyncTypeProvider, ""))
	if s.monitor != nil {
		if st, ok := s.monitor.GetStatus(provider.ServiceName); ok && st.LastSuccess != nil && st.LastSuccess.After(last) {
			last = *st.LastSuccess
		}
	}
	return last
}

// HealthChecker builds the checks served by the health endpoint.
func (s *Service) HealthChecker(timeout time.Duration) *resilience.HealthChecker {
	hc := resilience.NewHealthChecker(timeout)
	hc.RegisterComponent("database", resilience.DatabaseHealthCheck(s.store.Ping))
	if s.breaker != nil {
		hc.RegisterComponent("quota_circuit", resilience.CircuitHealthCheck(s.breaker))
	}
	return hc
}
