package domain

import (
	"fmt"
	"time"
)

// Config is the full offering configuration evaluated by the rule catalog. It
// carries every field relevant to a rule, including unchanged fields on
// update, so each rule sees the whole picture.
type Config struct {
	CourseID           string
	Name               string
	DeliveryType       DeliveryType
	CourseDeliveryType DeliveryType

	DurationType    DurationType
	EnrollStartDate time.Time
	EnrollEndDate   time.Time
	ClassStartDate  time.Time
	ClassEndDate    *time.Time
	DurationDays    *int

	Capacity         *int
	MaxWaitingCount  *int
	EnrollmentMethod EnrollmentMethod

	LocationInfo             string
	MinProgressForCompletion int
	AllowLateEnrollment      bool
}

// Severity classifies a rule breach: blocking breaches reject the
// configuration, warnings are surfaced to the caller but never prevent
// persistence.
type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityWarning  Severity = "warning"
)

// Violation is one rule breach found while evaluating a configuration.
type Violation struct {
	RuleCode string
	Severity Severity
	Message  string
}

// Rule is one entry of the catalog. Check returns ok=false (plus a message)
// when the configuration breaches the rule. Rules are pure: no I/O, no shared
// state, never an error (an unevaluable field combination is a violation,
// not a failure).
type Rule struct {
	Code     string
	Severity Severity
	Check    func(Config) (ok bool, msg string)
}

func (c Config) needsLocation() bool {
	switch c.DeliveryType {
	case DeliveryOffline, DeliveryBlended, DeliveryLive:
		return true
	default:
		return false
	}
}

// Catalog is the ordered, fixed set of configuration rules. Adding a rule is
// appending an entry here; call sites iterate the catalog and never reference
// individual rules by name.
var Catalog = []Rule{
	{
		Code:     "delivery.location_required",
		Severity: SeverityBlocking,
		Check: func(c Config) (bool, string) {
			if c.needsLocation() && c.LocationInfo == "" {
				return false, fmt.Sprintf("delivery type %q requires location info", c.DeliveryType)
			}
			return true, ""
		},
	},
	{
		Code:     "delivery.live_fixed_duration",
		Severity: SeverityBlocking,
		Check: func(c Config) (bool, string) {
			if c.DeliveryType == DeliveryLive && c.DurationType != DurationFixed {
				return false, "live delivery requires a fixed duration"
			}
			return true, ""
		},
	},
	{
		Code:     "delivery.online_unlimited_capacity",
		Severity: SeverityWarning,
		Check: func(c Config) (bool, string) {
			if c.DeliveryType == DeliveryOnline && c.DurationType == DurationUnlimited && c.Capacity != nil {
				return false, "an unlimited-duration online offering with a seat cap is unusual; consider removing the capacity"
			}
			return true, ""
		},
	},
	{
		Code:     "method.invite_only_capacity",
		Severity: SeverityBlocking,
		Check: func(c Config) (bool, string) {
			if c.EnrollmentMethod == MethodInviteOnly && c.Capacity != nil {
				return false, "invite-only enrollment bypasses seat counting and cannot carry a finite capacity"
			}
			return true, ""
		},
	},
	{
		Code:     "method.approval_no_waiting_list",
		Severity: SeverityWarning,
		Check: func(c Config) (bool, string) {
			if c.EnrollmentMethod == MethodApproval && c.MaxWaitingCount == nil {
				return false, "approval-based enrollment without a waiting list drops overflow requests"
			}
			return true, ""
		},
	},
	{
		Code:     "method.first_come_no_overflow",
		Severity: SeverityWarning,
		Check: func(c Config) (bool, string) {
			if c.EnrollmentMethod == MethodFirstCome && c.Capacity != nil && c.MaxWaitingCount == nil {
				return false, "first-come enrollment with a capacity but no waiting list turns away overflow learners"
			}
			return true, ""
		},
	},
	{
		Code:     "schedule.fixed_end_required",
		Severity: SeverityBlocking,
		Check: func(c Config) (bool, string) {
			if c.DurationType == DurationFixed && c.ClassEndDate == nil {
				return false, "fixed duration requires a class end date"
			}
			return true, ""
		},
	},
	{
		Code:     "schedule.relative_duration_positive",
		Severity: SeverityBlocking,
		Check: func(c Config) (bool, string) {
			if c.DurationType == DurationRelative && (c.DurationDays == nil || *c.DurationDays <= 0) {
				return false, "relative duration requires duration days > 0"
			}
			return true, ""
		},
	},
	{
		Code:     "schedule.unlimited_no_end_date",
		Severity: SeverityBlocking,
		Check: func(c Config) (bool, string) {
			if c.DurationType == DurationUnlimited && c.ClassEndDate != nil {
				return false, "unlimited duration forbids a class end date"
			}
			return true, ""
		},
	},
	{
		Code:     "schedule.enroll_window_valid",
		Severity: SeverityBlocking,
		Check: func(c Config) (bool, string) {
			if c.EnrollEndDate.Before(c.EnrollStartDate) {
				return false, "enrollment end date precedes enrollment start date"
			}
			return true, ""
		},
	},
	{
		Code:     "schedule.enroll_before_class",
		Severity: SeverityBlocking,
		Check: func(c Config) (bool, string) {
			if c.EnrollEndDate.After(c.ClassStartDate) {
				return false, "enrollment must end on or before the class start date"
			}
			return true, ""
		},
	},
	{
		Code:     "schedule.end_after_start",
		Severity: SeverityBlocking,
		Check: func(c Config) (bool, string) {
			if c.ClassEndDate != nil && !c.ClassEndDate.After(c.ClassStartDate) {
				return false, "class end date must be after the class start date"
			}
			return true, ""
		},
	},
	{
		Code:     "completion.progress_range",
		Severity: SeverityBlocking,
		Check: func(c Config) (bool, string) {
			if c.MinProgressForCompletion < 0 || c.MinProgressForCompletion > 100 {
				return false, fmt.Sprintf("minimum progress for completion must be 0-100, got %d", c.MinProgressForCompletion)
			}
			return true, ""
		},
	},
	{
		Code:     "course.delivery_mismatch",
		Severity: SeverityWarning,
		Check: func(c Config) (bool, string) {
			if c.CourseDeliveryType != "" && c.DeliveryType != c.CourseDeliveryType {
				return false, fmt.Sprintf("offering delivery %q differs from the course's declared delivery %q", c.DeliveryType, c.CourseDeliveryType)
			}
			return true, ""
		},
	},
}

// Evaluate runs the full catalog against a configuration and returns every
// violation found, in catalog order.
func Evaluate(cfg Config) []Violation {
	var out []Violation
	for _, rule := range Catalog {
		if ok, msg := rule.Check(cfg); !ok {
			out = append(out, Violation{
				RuleCode: rule.Code,
				Severity: rule.Severity,
				Message:  msg,
			})
		}
	}
	return out
}

// Blocking filters a violation list down to the blocking entries.
func Blocking(violations []Violation) []Violation {
	var out []Violation
	for _, v := range violations {
		if v.Severity == SeverityBlocking {
			out = append(out, v)
		}
	}
	return out
}

// Warnings filters a violation list down to the warning entries.
func Warnings(violations []Violation) []Violation {
	var out []Violation
	for _, v := range violations {
		if v.Severity == SeverityWarning {
			out = append(out, v)
		}
	}
	return out
}
