package periods

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wdfday/personalfinance-fe-sub001/internal/models"
	"github.com/wdfday/personalfinance-fe-sub001/pkg/logger"
)

func TestEngineReconcile(t *testing.T) {
	periods := []*models.Period{
		budget("B", day(2024, 2, 1)),
		budget("A", day(2024, 1, 1)),
	}
	records := []*models.Record{
		rec("r1", day(2024, 1, 15), "-50"),
		rec("r2", day(2024, 3, 1), "-30"),
		rec("r3", day(2023, 1, 1), "-10"),
		rec("r4", day(2024, 2, 20), "-90", budgetLink("A")),
	}

	engine := NewEngine(nil, logger.Discard())
	outcome := engine.Reconcile(records, periods, day(2024, 2, 10))

	if !equalStrings(periodIDs(outcome.Periods), []string{"A", "B"}) {
		t.Errorf("unexpected periods %v", periodIDs(outcome.Periods))
	}

	m := outcome.AssignmentMap()
	if *m["r1"] != "A" || *m["r2"] != "B" || m["r3"] != nil || *m["r4"] != "A" {
		t.Errorf("unexpected assignment map %v", m)
	}

	methods := outcome.CountByMethod()
	if methods[MethodLink] != 1 || methods[MethodDate] != 2 || methods[MethodNone] != 1 {
		t.Errorf("unexpected method counts %v", methods)
	}

	if !outcome.Totals["A"].Spent.Equal(dec("140")) || !outcome.Totals["B"].Spent.Equal(dec("30")) {
		t.Errorf("unexpected totals A=%s B=%s", outcome.Totals["A"].Spent, outcome.Totals["B"].Spent)
	}

	if outcome.Current.Period == nil || outcome.Current.Period.ID != "B" || outcome.Current.Fallback {
		t.Errorf("unexpected current selection %+v", outcome.Current)
	}

	if outcome.Statuses["A"] != models.StatusExceeded || outcome.Statuses["B"] != models.StatusActive {
		t.Errorf("unexpected statuses %v", outcome.Statuses)
	}

	if len(outcome.Monthly) != 2 || outcome.Monthly[0].Label() != "2024-01" || outcome.Monthly[1].Label() != "2024-02" {
		t.Fatalf("unexpected monthly points %v", outcome.Monthly)
	}
	if !outcome.Monthly[0].Spent.Equal(dec("50")) || !outcome.Monthly[1].Cumulative.Equal(dec("140")) {
		t.Errorf("unexpected monthly figures %+v", outcome.Monthly)
	}
}

func TestEngineReconcileEmpty(t *testing.T) {
	outcome := NewEngine(nil, logger.Discard()).Reconcile(nil, nil, day(2024, 2, 10))

	if len(outcome.Periods) != 0 || len(outcome.Totals) != 0 || outcome.Totals == nil {
		t.Errorf("expected empty outcome, got %+v", outcome)
	}
	if outcome.Current.Found() || outcome.Current.Rule != RuleNone {
		t.Errorf("expected no selection, got %+v", outcome.Current)
	}
	if outcome.Monthly != nil {
		t.Errorf("expected no monthly points, got %v", outcome.Monthly)
	}
}

func TestEngineLogsAnomalies(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := logger.NewLogger(&logger.Config{
		Level:            logger.WarnLevel,
		Format:           logger.JSONFormat,
		Writer:           buf,
		DisableTimestamp: true,
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	periods := []*models.Period{
		budget("X", day(2024, 3, 1)),
		budget("Y", day(2024, 3, 1)),
		closedBudget("W", day(2024, 2, 1), day(2024, 3, 20)),
	}
	records := []*models.Record{rec("r1", day(2024, 3, 5), "-5")}

	outcome := NewEngine(nil, log).Reconcile(records, periods, day(2024, 3, 10))

	counts := CountAnomalies(outcome.Anomalies)
	if counts[AnomalyDuplicateStart] != 1 || counts[AnomalyOverlap] != 1 || counts[AnomalyMultipleDateMatch] != 1 {
		t.Errorf("unexpected anomalies %v", outcome.Anomalies)
	}

	output := buf.String()
	for _, want := range []string{`"component":"periods_engine"`, `"anomaly":"duplicate_start"`, `"anomaly":"multiple_date_match"`, `"record_id":"r1"`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in log output:\n%s", want, output)
		}
	}

	// Y wins the duplicate; W overlaps it and loses to the later start
	if m := outcome.AssignmentMap(); *m["r1"] != "Y" {
		t.Errorf("expected r1 in Y, got %v", *m["r1"])
	}
}

func TestEngineConcurrentUse(t *testing.T) {
	engine := NewEngine(nil, logger.Discard())
	periods := []*models.Period{budget("A", day(2024, 1, 1)), budget("B", day(2024, 2, 1))}
	records := []*models.Record{rec("r1", day(2024, 1, 15), "-50"), rec("r2", day(2024, 2, 15), "-5")}

	var wg sync.WaitGroup
	results := make([]*Outcome, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = engine.Reconcile(records, periods, day(2024, 2, 10))
		}(i)
	}
	wg.Wait()

	for i, outcome := range results {
		if !outcome.Totals["A"].Spent.Equal(dec("50")) || outcome.Current.Period.ID != "B" {
			t.Errorf("run %d produced a different outcome", i)
		}
	}
}

func TestConfig(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"constraint kind", func(c *Config) { c.Kind = models.PeriodKindBudgetConstraint }, false},
		{"unknown kind", func(c *Config) { c.Kind = "GOAL" }, true},
		{"threshold above one", func(c *Config) { c.WarningThreshold = dec("1.5") }, true},
		{"negative threshold", func(c *Config) { c.WarningThreshold = dec("-0.1") }, true},
		{"unknown timezone mode", func(c *Config) { c.TimezoneHandling = TimezoneMode(9) }, true},
		{
			name: "bad business timezone",
			modify: func(c *Config) {
				c.TimezoneHandling = TimezoneBusiness
				c.BusinessTimezone = "Mars/Olympus"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigSetTimezone(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.SetTimezone("local"); err != nil || cfg.TimezoneHandling != TimezoneLocal || cfg.Location() != time.Local {
		t.Errorf("expected local timezone, got %v (%v)", cfg.TimezoneHandling, err)
	}
	if err := cfg.SetTimezone(""); err != nil || cfg.Location() != time.UTC {
		t.Errorf("expected UTC, got %v (%v)", cfg.Location(), err)
	}
	if err := cfg.SetTimezone("Nowhere/Special"); err == nil {
		t.Error("expected error for unknown zone")
	}
	if cfg.TimezoneHandling != TimezoneUTC {
		t.Error("failed SetTimezone must not change the mode")
	}

	clone := cfg.Clone()
	clone.RequireCategoryMatch = false
	if !cfg.RequireCategoryMatch {
		t.Error("Clone shares state with the original")
	}
	if !strings.Contains(cfg.String(), "Timezone: UTC") {
		t.Errorf("unexpected String(): %s", cfg.String())
	}
}
