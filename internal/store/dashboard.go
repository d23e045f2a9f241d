package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/releves-ma/si-releves/internal/model"
)

// recentWindow is how many of the latest readings the coverage rate looks at.
// Coverage is therefore an approximation: a meter read before the window
// counts as unread.
const recentWindow = 100

var frenchMonths = [12]string{
	"janv.", "févr.", "mars", "avr.", "mai", "juin",
	"juil.", "août", "sept.", "oct.", "nov.", "déc.",
}

// Stats computes the dashboard KPI block, optionally narrowed to a district.
func (s *Store) Stats(ctx context.Context, districtID string) (model.DashboardStats, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return model.DashboardStats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	inDistrict := func(m *model.Meter) bool {
		return districtID == "" || s.meterDistrictID(m) == districtID
	}

	meterByID := make(map[string]*model.Meter, len(s.meters))
	var stats model.DashboardStats
	for i := range s.meters {
		m := &s.meters[i]
		meterByID[m.ID] = m
		if inDistrict(m) {
			stats.TotalMeters++
		}
	}

	today := time.Now().UTC().Format("2006-01-02")
	readRecently := make(map[string]bool)
	var waterSum, waterN, elecSum, elecN int
	seen := 0
	for _, r := range s.readings {
		m := meterByID[r.MeterID]
		if m == nil || !inDistrict(m) {
			continue
		}
		if seen < recentWindow {
			readRecently[r.MeterID] = true
			seen++
		}
		if hasDatePrefix(r.Date, today) {
			stats.TodayReadings++
		}
		switch r.Type {
		case model.MeterWater:
			waterSum += r.Consumption
			waterN++
		case model.MeterElectricity:
			elecSum += r.Consumption
			elecN++
		}
	}

	stats.MetersRead = len(readRecently)
	if stats.TotalMeters > 0 {
		stats.CoverageRate = float64(stats.MetersRead) / float64(stats.TotalMeters) * 100
	}
	if waterN > 0 {
		stats.AvgWaterConsumption = float64(waterSum) / float64(waterN)
	}
	if elecN > 0 {
		stats.AvgElectricityConsumption = float64(elecSum) / float64(elecN)
	}
	return stats, nil
}

// ReadingsPerAgent returns the all-time reading total of every agent,
// busiest agent first.
func (s *Store) ReadingsPerAgent(ctx context.Context) ([]model.AgentReadingCount, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int, len(s.agents))
	for _, r := range s.readings {
		counts[r.AgentID]++
	}

	out := make([]model.AgentReadingCount, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, model.AgentReadingCount{
			AgentID:       a.ID,
			AgentName:     a.FirstName + " " + a.LastName,
			ReadingsCount: counts[a.ID],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReadingsCount > out[j].ReadingsCount })
	return out, nil
}

// ConsumptionTrends averages consumption per type per month over the last
// six months, current month included, rounded to the nearest integer. Months
// without readings appear with zero values.
func (s *Store) ConsumptionTrends(ctx context.Context) ([]model.ConsumptionTrend, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UTC()
	type bucket struct {
		waterSum, waterN int
		elecSum, elecN   int
	}
	buckets := make(map[string]*bucket, 6)
	months := make([]time.Time, 0, 6)
	for i := 5; i >= 0; i-- {
		m := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -i, 0)
		months = append(months, m)
		buckets[m.Format("2006-01")] = &bucket{}
	}

	for _, r := range s.readings {
		b, ok := buckets[r.Date.UTC().Format("2006-01")]
		if !ok {
			continue
		}
		switch r.Type {
		case model.MeterWater:
			b.waterSum += r.Consumption
			b.waterN++
		case model.MeterElectricity:
			b.elecSum += r.Consumption
			b.elecN++
		}
	}

	roundAvg := func(sum, n int) int {
		if n == 0 {
			return 0
		}
		return int(math.Round(float64(sum) / float64(n)))
	}

	out := make([]model.ConsumptionTrend, 0, len(months))
	for _, m := range months {
		b := buckets[m.Format("2006-01")]
		out = append(out, model.ConsumptionTrend{
			Month:       fmt.Sprintf("%s %s", frenchMonths[m.Month()-1], m.Format("06")),
			Water:       roundAvg(b.waterSum, b.waterN),
			Electricity: roundAvg(b.elecSum, b.elecN),
		})
	}
	return out, nil
}

// AgentPerformance returns a daily reading-count series for one agent over
// the trailing 90 days, oldest day first. Days without readings are included
// with a zero count.
func (s *Store) AgentPerformance(ctx context.Context, agentID string) ([]model.AgentPerformance, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var agent *model.Agent
	for i := range s.agents {
		if s.agents[i].ID == agentID {
			agent = &s.agents[i]
			break
		}
	}
	if agent == nil {
		return nil, ErrAgentNotFound
	}
	name := agent.FirstName + " " + agent.LastName

	counts := make(map[string]int)
	for _, r := range s.readings {
		if r.AgentID == agentID {
			counts[r.Date.UTC().Format("2006-01-02")]++
		}
	}

	now := time.Now().UTC()
	out := make([]model.AgentPerformance, 0, 90)
	for i := 89; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Format("2006-01-02")
		out = append(out, model.AgentPerformance{
			AgentID:       agentID,
			AgentName:     name,
			ReadingsCount: counts[day],
			Date:          day,
		})
	}
	return out, nil
}
