package domain_test

import (
	"testing"

	"github.com/neomorfeo/enrolliq/internal/domain"
)

func findViolation(violations []domain.Violation, code string) *domain.Violation {
	for i := range violations {
		if violations[i].RuleCode == code {
			return &violations[i]
		}
	}
	return nil
}

func TestEvaluate_CleanConfig(t *testing.T) {
	violations := domain.Evaluate(baseConfig())
	if len(violations) != 0 {
		t.Errorf("expected no violations, got %v", violations)
	}
}

func TestEvaluate_BlockingRules(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*domain.Config)
		wantCode string
	}{
		{
			"offline without location",
			func(c *domain.Config) { c.DeliveryType = domain.DeliveryOffline; c.LocationInfo = "" },
			"delivery.location_required",
		},
		{
			"live with relative duration",
			func(c *domain.Config) {
				c.DeliveryType = domain.DeliveryLive
				c.LocationInfo = "Studio 4"
				c.DurationType = domain.DurationRelative
				c.ClassEndDate = nil
				c.DurationDays = intPtr(10)
			},
			"delivery.live_fixed_duration",
		},
		{
			"invite only with finite capacity",
			func(c *domain.Config) { c.EnrollmentMethod = domain.MethodInviteOnly },
			"method.invite_only_capacity",
		},
		{
			"fixed without end date",
			func(c *domain.Config) { c.ClassEndDate = nil },
			"schedule.fixed_end_required",
		},
		{
			"relative without days",
			func(c *domain.Config) {
				c.DurationType = domain.DurationRelative
				c.ClassEndDate = nil
				c.DurationDays = nil
			},
			"schedule.relative_duration_positive",
		},
		{
			"relative with zero days",
			func(c *domain.Config) {
				c.DurationType = domain.DurationRelative
				c.ClassEndDate = nil
				c.DurationDays = intPtr(0)
			},
			"schedule.relative_duration_positive",
		},
		{
			"unlimited with end date",
			func(c *domain.Config) { c.DurationType = domain.DurationUnlimited },
			"schedule.unlimited_no_end_date",
		},
		{
			"enroll window inverted",
			func(c *domain.Config) { c.EnrollEndDate = day("2025-12-01") },
			"schedule.enroll_window_valid",
		},
		{
			"enrollment past class start",
			func(c *domain.Config) { c.EnrollEndDate = day("2026-02-15") },
			"schedule.enroll_before_class",
		},
		{
			"class ends before it starts",
			func(c *domain.Config) { c.ClassEndDate = timePtr(day("2026-01-15")) },
			"schedule.end_after_start",
		},
		{
			"progress over 100",
			func(c *domain.Config) { c.MinProgressForCompletion = 150 },
			"completion.progress_range",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			tc.mutate(&cfg)

			violations := domain.Evaluate(cfg)
			v := findViolation(violations, tc.wantCode)
			if v == nil {
				t.Fatalf("expected violation %q, got %v", tc.wantCode, violations)
			}
			if v.Severity != domain.SeverityBlocking {
				t.Errorf("severity = %q, want blocking", v.Severity)
			}
			if v.Message == "" {
				t.Error("violation message is empty")
			}
		})
	}
}

func TestEvaluate_WarningRules(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*domain.Config)
		wantCode string
	}{
		{
			"unlimited online with seat cap",
			func(c *domain.Config) {
				c.DurationType = domain.DurationUnlimited
				c.ClassEndDate = nil
			},
			"delivery.online_unlimited_capacity",
		},
		{
			"approval without waiting list",
			func(c *domain.Config) {
				c.EnrollmentMethod = domain.MethodApproval
				c.MaxWaitingCount = nil
			},
			"method.approval_no_waiting_list",
		},
		{
			"first come without overflow",
			func(c *domain.Config) { c.MaxWaitingCount = nil },
			"method.first_come_no_overflow",
		},
		{
			"delivery differs from course",
			func(c *domain.Config) { c.CourseDeliveryType = domain.DeliveryOffline },
			"course.delivery_mismatch",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			tc.mutate(&cfg)

			violations := domain.Evaluate(cfg)
			v := findViolation(violations, tc.wantCode)
			if v == nil {
				t.Fatalf("expected violation %q, got %v", tc.wantCode, violations)
			}
			if v.Severity != domain.SeverityWarning {
				t.Errorf("severity = %q, want warning", v.Severity)
			}
			if len(domain.Blocking(violations)) != 0 {
				t.Errorf("warnings must not block, got blocking %v", domain.Blocking(violations))
			}
		})
	}
}

func TestEvaluate_CollectsMultiple(t *testing.T) {
	cfg := baseConfig()
	cfg.DeliveryType = domain.DeliveryOffline // missing location
	cfg.LocationInfo = ""
	cfg.ClassEndDate = nil // fixed without end date
	cfg.MinProgressForCompletion = -1

	violations := domain.Evaluate(cfg)
	if len(domain.Blocking(violations)) < 3 {
		t.Errorf("expected at least 3 blocking violations, got %v", violations)
	}
}

func TestBlockingAndWarnings_Partition(t *testing.T) {
	violations := []domain.Violation{
		{RuleCode: "a", Severity: domain.SeverityBlocking},
		{RuleCode: "b", Severity: domain.SeverityWarning},
		{RuleCode: "c", Severity: domain.SeverityBlocking},
	}

	if got := domain.Blocking(violations); len(got) != 2 {
		t.Errorf("Blocking() returned %d entries, want 2", len(got))
	}
	if got := domain.Warnings(violations); len(got) != 1 || got[0].RuleCode != "b" {
		t.Errorf("Warnings() = %v, want [b]", got)
	}
}

func TestCatalog_CodesAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, rule := range domain.Catalog {
		if seen[rule.Code] {
			t.Errorf("duplicate rule code %q", rule.Code)
		}
		seen[rule.Code] = true
	}
}
