package domain

import "time"

// Status represents the lifecycle state of an offering.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusRecruiting Status = "recruiting"
	StatusOngoing    Status = "ongoing"
	StatusClosed     Status = "closed"
	StatusArchived   Status = "archived"
)

// Event represents an action that triggers a state transition.
type Event string

const (
	EventPublish Event = "publish"
	EventStart   Event = "start"
	EventClose   Event = "close"
	EventArchive Event = "archive"
)

// DeliveryType describes how the class is delivered to learners.
type DeliveryType string

const (
	DeliveryOnline  DeliveryType = "online"
	DeliveryOffline DeliveryType = "offline"
	DeliveryBlended DeliveryType = "blended"
	DeliveryLive    DeliveryType = "live"
)

// DurationType describes how the class end date is determined.
type DurationType string

const (
	DurationFixed     DurationType = "fixed"     // explicit ClassEndDate
	DurationRelative  DurationType = "relative"  // ClassStartDate + DurationDays
	DurationUnlimited DurationType = "unlimited" // never ends
)

// EnrollmentMethod describes how a learner obtains a seat.
type EnrollmentMethod string

const (
	MethodFirstCome  EnrollmentMethod = "first_come"
	MethodApproval   EnrollmentMethod = "approval"
	MethodInviteOnly EnrollmentMethod = "invite_only"
)

// Transition defines a valid state change: an event moves an offering from Src to Dst.
type Transition struct {
	Event Event
	Src   Status
	Dst   Status
}

// Transitions defines all valid state changes in the offering lifecycle.
// Publish is guarded by the rule engine (zero blocking violations); start and
// close fire both from operator calls and from the lifecycle sweep. Archive is
// terminal from every non-archived state. This is domain knowledge consumed by
// the FSM adapter.
var Transitions = []Transition{
	{Event: EventPublish, Src: StatusDraft, Dst: StatusRecruiting},
	{Event: EventStart, Src: StatusRecruiting, Dst: StatusOngoing},
	{Event: EventClose, Src: StatusOngoing, Dst: StatusClosed},
	{Event: EventArchive, Src: StatusDraft, Dst: StatusArchived},
	{Event: EventArchive, Src: StatusRecruiting, Dst: StatusArchived},
	{Event: EventArchive, Src: StatusOngoing, Dst: StatusArchived},
	{Event: EventArchive, Src: StatusClosed, Dst: StatusArchived},
}

// Offering is a scheduled, capacity-bounded instance of a course.
type Offering struct {
	ID       string
	TenantID string
	CourseID string
	Name     string

	DeliveryType DeliveryType
	// CourseDeliveryType is the delivery type declared on the parent course,
	// snapshotted at creation for the cross-entity consistency rule.
	CourseDeliveryType DeliveryType

	DurationType    DurationType
	EnrollStartDate time.Time
	EnrollEndDate   time.Time
	ClassStartDate  time.Time
	ClassEndDate    *time.Time // set iff DurationType == fixed
	DurationDays    *int       // set iff DurationType == relative

	Capacity         *int // nil = unlimited seats
	MaxWaitingCount  *int // nil = no waiting list
	EnrollmentMethod EnrollmentMethod

	LocationInfo             string
	MinProgressForCompletion int
	AllowLateEnrollment      bool

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOffering creates an offering in the initial "draft" state from the given
// configuration. The configuration is assumed to have passed rule evaluation.
func NewOffering(id, tenantID string, cfg Config) Offering {
	now := time.Now().UTC()
	return Offering{
		ID:                       id,
		TenantID:                 tenantID,
		CourseID:                 cfg.CourseID,
		Name:                     cfg.Name,
		DeliveryType:             cfg.DeliveryType,
		CourseDeliveryType:       cfg.CourseDeliveryType,
		DurationType:             cfg.DurationType,
		EnrollStartDate:          cfg.EnrollStartDate,
		EnrollEndDate:            cfg.EnrollEndDate,
		ClassStartDate:           cfg.ClassStartDate,
		ClassEndDate:             cfg.ClassEndDate,
		DurationDays:             cfg.DurationDays,
		Capacity:                 cfg.Capacity,
		MaxWaitingCount:          cfg.MaxWaitingCount,
		EnrollmentMethod:         cfg.EnrollmentMethod,
		LocationInfo:             cfg.LocationInfo,
		MinProgressForCompletion: cfg.MinProgressForCompletion,
		AllowLateEnrollment:      cfg.AllowLateEnrollment,
		Status:                   StatusDraft,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
}

// Config returns the offering's current configuration, the input shape the
// rule engine evaluates. Updates re-evaluate the full configuration, not just
// the changed fields.
func (o Offering) Config() Config {
	return Config{
		CourseID:                 o.CourseID,
		Name:                     o.Name,
		DeliveryType:             o.DeliveryType,
		CourseDeliveryType:       o.CourseDeliveryType,
		DurationType:             o.DurationType,
		EnrollStartDate:          o.EnrollStartDate,
		EnrollEndDate:            o.EnrollEndDate,
		ClassStartDate:           o.ClassStartDate,
		ClassEndDate:             o.ClassEndDate,
		DurationDays:             o.DurationDays,
		Capacity:                 o.Capacity,
		MaxWaitingCount:          o.MaxWaitingCount,
		EnrollmentMethod:         o.EnrollmentMethod,
		LocationInfo:             o.LocationInfo,
		MinProgressForCompletion: o.MinProgressForCompletion,
		AllowLateEnrollment:      o.AllowLateEnrollment,
	}
}

// EndDate computes the effective class end date. The second return value is
// false for unlimited-duration offerings, which never end.
func (o Offering) EndDate() (time.Time, bool) {
	switch o.DurationType {
	case DurationFixed:
		if o.ClassEndDate == nil {
			return time.Time{}, false
		}
		return *o.ClassEndDate, true
	case DurationRelative:
		if o.DurationDays == nil {
			return time.Time{}, false
		}
		return o.ClassStartDate.AddDate(0, 0, *o.DurationDays), true
	default:
		return time.Time{}, false
	}
}

// EnrollmentOpen reports whether a learner may enroll at the given instant:
// the offering is recruiting within its enrollment window, or ongoing when
// late enrollment is allowed.
func (o Offering) EnrollmentOpen(now time.Time) bool {
	switch o.Status {
	case StatusRecruiting:
		if o.AllowLateEnrollment {
			return !now.Before(o.EnrollStartDate)
		}
		return !now.Before(o.EnrollStartDate) && !now.After(o.EnrollEndDate)
	case StatusOngoing:
		return o.AllowLateEnrollment
	default:
		return false
	}
}

// Field identifies an updatable offering field in the mutability table.
type Field string

const (
	FieldName            Field = "name"
	FieldDeliveryType    Field = "delivery_type"
	FieldDurationType    Field = "duration_type"
	FieldEnrollStartDate Field = "enroll_start_date"
	FieldEnrollEndDate   Field = "enroll_end_date"
	FieldClassStartDate  Field = "class_start_date"
	FieldClassEndDate    Field = "class_end_date"
	FieldDurationDays    Field = "duration_days"
	FieldCapacity        Field = "capacity"
	FieldMaxWaiting      Field = "max_waiting_count"
	FieldMethod          Field = "enrollment_method"
	FieldLocationInfo    Field = "location_info"
	FieldMinProgress     Field = "min_progress"
	FieldLateEnrollment  Field = "allow_late_enrollment"
)

// mutableFields is the explicit (status × field) mutability table. Draft
// offerings are fully editable. Once recruiting, the delivery shape and class
// start are frozen so already-enrolled learners are not pulled out from under.
// Ongoing offerings only admit capacity-side adjustments. Closed and archived
// offerings are read-only.
var mutableFields = map[Status]map[Field]bool{
	StatusDraft: {
		FieldName: true, FieldDeliveryType: true, FieldDurationType: true,
		FieldEnrollStartDate: true, FieldEnrollEndDate: true,
		FieldClassStartDate: true, FieldClassEndDate: true, FieldDurationDays: true,
		FieldCapacity: true, FieldMaxWaiting: true, FieldMethod: true,
		FieldLocationInfo: true, FieldMinProgress: true, FieldLateEnrollment: true,
	},
	StatusRecruiting: {
		FieldName:            true,
		FieldEnrollStartDate: true, FieldEnrollEndDate: true,
		FieldClassEndDate: true, FieldDurationDays: true,
		FieldCapacity: true, FieldMaxWaiting: true, FieldMethod: true,
		FieldLocationInfo: true, FieldMinProgress: true, FieldLateEnrollment: true,
	},
	StatusOngoing: {
		FieldCapacity: true, FieldMaxWaiting: true,
		FieldLocationInfo: true, FieldMinProgress: true, FieldLateEnrollment: true,
	},
	StatusClosed:   {},
	StatusArchived: {},
}

// FieldMutable reports whether the given field may change while the offering
// is in the given status.
func FieldMutable(status Status, field Field) bool {
	return mutableFields[status][field]
}
