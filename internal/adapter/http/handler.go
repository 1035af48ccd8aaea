package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/enrolliq/internal/app"
	"github.com/neomorfeo/enrolliq/internal/domain"
)

// OfferingResponse is the API representation of an offering.
type OfferingResponse struct {
	ID                  string     `json:"id" doc:"Unique identifier"`
	CourseID            string     `json:"course_id" doc:"Parent course identifier"`
	Name                string     `json:"name" doc:"Display name"`
	DeliveryType        string     `json:"delivery_type" doc:"Delivery mode"`
	DurationType        string     `json:"duration_type" doc:"How the end date is determined"`
	EnrollStartDate     time.Time  `json:"enroll_start_date" doc:"Enrollment window opens"`
	EnrollEndDate       time.Time  `json:"enroll_end_date" doc:"Enrollment window closes"`
	ClassStartDate      time.Time  `json:"class_start_date" doc:"Class begins"`
	ClassEndDate        *time.Time `json:"class_end_date,omitempty" doc:"Class ends (fixed duration only)"`
	DurationDays        *int       `json:"duration_days,omitempty" doc:"Class length in days (relative duration only)"`
	Capacity            *int       `json:"capacity,omitempty" doc:"Seat limit, absent = unlimited"`
	MaxWaitingCount     *int       `json:"max_waiting_count,omitempty" doc:"Waiting list limit, absent = no waiting list"`
	EnrollmentMethod    string     `json:"enrollment_method" doc:"How learners obtain a seat"`
	LocationInfo        string     `json:"location_info,omitempty" doc:"Physical or live-session location"`
	MinProgress         int        `json:"min_progress" doc:"Minimum progress (0-100) required to complete"`
	AllowLateEnrollment bool       `json:"allow_late_enrollment" doc:"Whether learners may enroll after class start"`
	Status              string     `json:"status" doc:"Lifecycle state"`
	CreatedAt           time.Time  `json:"created_at" doc:"Creation timestamp"`
	UpdatedAt           time.Time  `json:"updated_at" doc:"Last update timestamp"`
}

// ViolationResponse is the API representation of a rule violation.
type ViolationResponse struct {
	RuleCode string `json:"rule_code" doc:"Stable rule identifier"`
	Severity string `json:"severity" doc:"blocking or warning"`
	Message  string `json:"message" doc:"Human-readable explanation"`
}

// EnrollmentResponse is the API representation of an enrollment.
type EnrollmentResponse struct {
	ID          string     `json:"id" doc:"Unique identifier"`
	OfferingID  string     `json:"offering_id" doc:"Offering identifier"`
	UserID      string     `json:"user_id" doc:"Learner identifier"`
	Status      string     `json:"status" doc:"Enrollment state"`
	EnrolledAt  time.Time  `json:"enrolled_at" doc:"When the learner enrolled"`
	Score       *float64   `json:"score,omitempty" doc:"Final score, if completed with one"`
	CompletedAt *time.Time `json:"completed_at,omitempty" doc:"Completion timestamp"`
}

func toOfferingResponse(o domain.Offering) OfferingResponse {
	return OfferingResponse{
		ID:                  o.ID,
		CourseID:            o.CourseID,
		Name:                o.Name,
		DeliveryType:        string(o.DeliveryType),
		DurationType:        string(o.DurationType),
		EnrollStartDate:     o.EnrollStartDate,
		EnrollEndDate:       o.EnrollEndDate,
		ClassStartDate:      o.ClassStartDate,
		ClassEndDate:        o.ClassEndDate,
		DurationDays:        o.DurationDays,
		Capacity:            o.Capacity,
		MaxWaitingCount:     o.MaxWaitingCount,
		EnrollmentMethod:    string(o.EnrollmentMethod),
		LocationInfo:        o.LocationInfo,
		MinProgress:         o.MinProgressForCompletion,
		AllowLateEnrollment: o.AllowLateEnrollment,
		Status:              string(o.Status),
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
}

func toViolationResponses(violations []domain.Violation) []ViolationResponse {
	out := make([]ViolationResponse, len(violations))
	for i, v := range violations {
		out[i] = ViolationResponse{RuleCode: v.RuleCode, Severity: string(v.Severity), Message: v.Message}
	}
	return out
}

func toEnrollmentResponse(e domain.Enrollment) EnrollmentResponse {
	return EnrollmentResponse{
		ID:          e.ID,
		OfferingID:  e.OfferingID,
		UserID:      e.UserID,
		Status:      string(e.Status),
		EnrolledAt:  e.EnrolledAt,
		Score:       e.Score,
		CompletedAt: e.CompletedAt,
	}
}

// OfferingBody is the configuration payload for creating an offering.
type OfferingBody struct {
	CourseID            string     `json:"course_id" minLength:"1" doc:"Parent course identifier"`
	CourseDeliveryType  string     `json:"course_delivery_type,omitempty" enum:",online,offline,blended,live" doc:"Delivery type declared on the parent course"`
	Name                string     `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
	DeliveryType        string     `json:"delivery_type" enum:"online,offline,blended,live" doc:"Delivery mode"`
	DurationType        string     `json:"duration_type" enum:"fixed,relative,unlimited" doc:"How the end date is determined"`
	EnrollStartDate     time.Time  `json:"enroll_start_date" doc:"Enrollment window opens"`
	EnrollEndDate       time.Time  `json:"enroll_end_date" doc:"Enrollment window closes"`
	ClassStartDate      time.Time  `json:"class_start_date" doc:"Class begins"`
	ClassEndDate        *time.Time `json:"class_end_date,omitempty" doc:"Required for fixed duration"`
	DurationDays        *int       `json:"duration_days,omitempty" minimum:"1" doc:"Required for relative duration"`
	Capacity            *int       `json:"capacity,omitempty" minimum:"0" doc:"Seat limit, omit for unlimited"`
	MaxWaitingCount     *int       `json:"max_waiting_count,omitempty" minimum:"0" doc:"Waiting list limit, omit for none"`
	EnrollmentMethod    string     `json:"enrollment_method" enum:"first_come,approval,invite_only" doc:"How learners obtain a seat"`
	LocationInfo        string     `json:"location_info,omitempty" doc:"Physical or live-session location"`
	MinProgress         int        `json:"min_progress,omitempty" minimum:"0" maximum:"100" doc:"Minimum progress required to complete"`
	AllowLateEnrollment bool       `json:"allow_late_enrollment,omitempty" doc:"Whether learners may enroll after class start"`
}

func (b OfferingBody) toConfig() domain.Config {
	return domain.Config{
		CourseID:                 b.CourseID,
		CourseDeliveryType:       domain.DeliveryType(b.CourseDeliveryType),
		Name:                     b.Name,
		DeliveryType:             domain.DeliveryType(b.DeliveryType),
		DurationType:             domain.DurationType(b.DurationType),
		EnrollStartDate:          b.EnrollStartDate,
		EnrollEndDate:            b.EnrollEndDate,
		ClassStartDate:           b.ClassStartDate,
		ClassEndDate:             b.ClassEndDate,
		DurationDays:             b.DurationDays,
		Capacity:                 b.Capacity,
		MaxWaitingCount:          b.MaxWaitingCount,
		EnrollmentMethod:         domain.EnrollmentMethod(b.EnrollmentMethod),
		LocationInfo:             b.LocationInfo,
		MinProgressForCompletion: b.MinProgress,
		AllowLateEnrollment:      b.AllowLateEnrollment,
	}
}

// --- Create Offering ---

type CreateOfferingInput struct {
	TenantID string `header:"X-Tenant-ID" required:"true" doc:"Tenant scope"`
	Body     OfferingBody
}

type CreateOfferingOutput struct {
	Body struct {
		Offering OfferingResponse    `json:"offering"`
		Warnings []ViolationResponse `json:"warnings,omitempty" doc:"Advisory rule violations"`
	}
}

// --- Get / List ---

type GetOfferingInput struct {
	TenantID string `header:"X-Tenant-ID" required:"true" doc:"Tenant scope"`
	ID       string `path:"id" doc:"Offering ID"`
}

type GetOfferingOutput struct {
	Body OfferingResponse
}

type ListOfferingsInput struct {
	TenantID string `header:"X-Tenant-ID" required:"true" doc:"Tenant scope"`
	Status   string `query:"status" required:"false" enum:",draft,recruiting,ongoing,closed,archived" doc:"Filter by status"`
	Limit    int    `query:"limit" required:"false" default:"50" doc:"Max results"`
	Offset   int    `query:"offset" required:"false" default:"0" doc:"Pagination offset"`
}

type ListOfferingsOutput struct {
	Body []OfferingResponse
}

// --- Update ---

type UpdateOfferingInput struct {
	TenantID string `header:"X-Tenant-ID" required:"true" doc:"Tenant scope"`
	ID       string `path:"id" doc:"Offering ID"`
	Body     struct {
		Name                *string    `json:"name,omitempty" minLength:"1" maxLength:"255"`
		DeliveryType        *string    `json:"delivery_type,omitempty" enum:"online,offline,blended,live"`
		DurationType        *string    `json:"duration_type,omitempty" enum:"fixed,relative,unlimited"`
		EnrollStartDate     *time.Time `json:"enroll_start_date,omitempty"`
		EnrollEndDate       *time.Time `json:"enroll_end_date,omitempty"`
		ClassStartDate      *time.Time `json:"class_start_date,omitempty"`
		ClassEndDate        *time.Time `json:"class_end_date,omitempty"`
		ClearClassEndDate   bool       `json:"clear_class_end_date,omitempty" doc:"Remove the class end date"`
		DurationDays        *int       `json:"duration_days,omitempty" minimum:"1"`
		ClearDurationDays   bool       `json:"clear_duration_days,omitempty" doc:"Remove the duration"`
		Capacity            *int       `json:"capacity,omitempty" minimum:"0"`
		ClearCapacity       bool       `json:"clear_capacity,omitempty" doc:"Make seats unlimited"`
		MaxWaitingCount     *int       `json:"max_waiting_count,omitempty" minimum:"0"`
		ClearMaxWaiting     bool       `json:"clear_max_waiting_count,omitempty" doc:"Remove the waiting list"`
		EnrollmentMethod    *string    `json:"enrollment_method,omitempty" enum:"first_come,approval,invite_only"`
		LocationInfo        *string    `json:"location_info,omitempty"`
		MinProgress         *int       `json:"min_progress,omitempty" minimum:"0" maximum:"100"`
		AllowLateEnrollment *bool      `json:"allow_late_enrollment,omitempty"`
	}
}

type UpdateOfferingOutput struct {
	Body struct {
		Offering OfferingResponse    `json:"offering"`
		Warnings []ViolationResponse `json:"warnings,omitempty" doc:"Advisory rule violations"`
	}
}

// --- Lifecycle event ---

type TransitionInput struct {
	TenantID string `header:"X-Tenant-ID" required:"true" doc:"Tenant scope"`
	ID       string `path:"id" doc:"Offering ID"`
	Body     struct {
		Event string `json:"event" enum:"publish,start,close,archive" doc:"Lifecycle event to trigger"`
	}
}

type TransitionOutput struct {
	Body OfferingResponse
}

// --- Enrollment ---

type EnrollInput struct {
	TenantID string `header:"X-Tenant-ID" required:"true" doc:"Tenant scope"`
	ID       string `path:"id" doc:"Offering ID"`
	Body     struct {
		UserID      string `json:"user_id" minLength:"1" doc:"Learner identifier"`
		InviteToken string `json:"invite_token,omitempty" doc:"Required for invite-only offerings"`
	}
}

type EnrollOutput struct {
	Body EnrollmentResponse
}

type CancelInput struct {
	TenantID string `header:"X-Tenant-ID" required:"true" doc:"Tenant scope"`
	ID       string `path:"id" doc:"Offering ID"`
	UserID   string `path:"userID" doc:"Learner identifier"`
}

type CancelOutput struct {
	Status int
}

type CompleteInput struct {
	TenantID string `header:"X-Tenant-ID" required:"true" doc:"Tenant scope"`
	ID       string `path:"id" doc:"Offering ID"`
	UserID   string `path:"userID" doc:"Learner identifier"`
	Body     struct {
		Score *float64 `json:"score,omitempty" minimum:"0" maximum:"100" doc:"Final progress score from the progress tracker"`
	}
}

type CompleteOutput struct {
	Body EnrollmentResponse
}

type ReviewInput struct {
	TenantID string `header:"X-Tenant-ID" required:"true" doc:"Tenant scope"`
	ID       string `path:"id" doc:"Offering ID"`
	UserID   string `path:"userID" doc:"Learner identifier"`
	Body     struct {
		Approve bool `json:"approve" doc:"true to approve, false to reject"`
	}
}

type ReviewOutput struct {
	Body EnrollmentResponse
}

type ListEnrollmentsInput struct {
	TenantID string `header:"X-Tenant-ID" required:"true" doc:"Tenant scope"`
	ID       string `path:"id" doc:"Offering ID"`
}

type ListEnrollmentsOutput struct {
	Body []EnrollmentResponse
}

// --- Lifecycle sweep ---

type SweepInput struct{}

type SweepOutput struct {
	Body struct {
		Started PhaseReportResponse `json:"started"`
		Closed  PhaseReportResponse `json:"closed"`
	}
}

// PhaseReportResponse is the API representation of one sweep phase outcome.
type PhaseReportResponse struct {
	Scanned      int `json:"scanned"`
	Transitioned int `json:"transitioned"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
}

func toPhaseReportResponse(r app.PhaseReport) PhaseReportResponse {
	return PhaseReportResponse{
		Scanned:      r.Scanned,
		Transitioned: r.Transitioned,
		Skipped:      r.Skipped,
		Failed:       r.Failed,
	}
}

// Register adds all API routes to the Huma API.
func Register(api huma.API, offerings *app.OfferingService, enrollments *app.EnrollmentService, lifecycle *app.LifecycleService) {
	huma.Register(api, huma.Operation{
		OperationID: "create-offering",
		Method:      http.MethodPost,
		Path:        "/api/v1/offerings",
		Summary:     "Create a draft offering",
		Tags:        []string{"Offerings"},
	}, func(ctx context.Context, input *CreateOfferingInput) (*CreateOfferingOutput, error) {
		offering, warnings, err := offerings.Create(ctx, input.TenantID, input.Body.toConfig())
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &CreateOfferingOutput{}
		out.Body.Offering = toOfferingResponse(offering)
		out.Body.Warnings = toViolationResponses(warnings)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-offering",
		Method:      http.MethodGet,
		Path:        "/api/v1/offerings/{id}",
		Summary:     "Get an offering by ID",
		Tags:        []string{"Offerings"},
	}, func(ctx context.Context, input *GetOfferingInput) (*GetOfferingOutput, error) {
		offering, err := offerings.GetByID(ctx, input.TenantID, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetOfferingOutput{Body: toOfferingResponse(offering)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-offerings",
		Method:      http.MethodGet,
		Path:        "/api/v1/offerings",
		Summary:     "List offerings",
		Tags:        []string{"Offerings"},
	}, func(ctx context.Context, input *ListOfferingsInput) (*ListOfferingsOutput, error) {
		filter := domain.OfferingFilter{
			Limit:  input.Limit,
			Offset: input.Offset,
		}
		if input.Status != "" {
			s := domain.Status(input.Status)
			filter.Status = &s
		}

		found, err := offerings.List(ctx, input.TenantID, filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]OfferingResponse, len(found))
		for i, o := range found {
			resp[i] = toOfferingResponse(o)
		}
		return &ListOfferingsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-offering",
		Method:      http.MethodPatch,
		Path:        "/api/v1/offerings/{id}",
		Summary:     "Update an offering's configuration",
		Tags:        []string{"Offerings"},
	}, func(ctx context.Context, input *UpdateOfferingInput) (*UpdateOfferingOutput, error) {
		b := input.Body
		update := app.Update{
			Name:            b.Name,
			EnrollStartDate: b.EnrollStartDate,
			EnrollEndDate:   b.EnrollEndDate,
			ClassStartDate:  b.ClassStartDate,
			ClassEndDate:    b.ClassEndDate,
			ClearClassEnd:   b.ClearClassEndDate,
			DurationDays:    b.DurationDays,
			ClearDuration:   b.ClearDurationDays,
			Capacity:        b.Capacity,
			ClearCapacity:   b.ClearCapacity,
			MaxWaitingCount: b.MaxWaitingCount,
			ClearMaxWaiting: b.ClearMaxWaiting,
			LocationInfo:    b.LocationInfo,
			MinProgress:     b.MinProgress,
			LateEnrollment:  b.AllowLateEnrollment,
		}
		if b.DeliveryType != nil {
			d := domain.DeliveryType(*b.DeliveryType)
			update.DeliveryType = &d
		}
		if b.DurationType != nil {
			d := domain.DurationType(*b.DurationType)
			update.DurationType = &d
		}
		if b.EnrollmentMethod != nil {
			m := domain.EnrollmentMethod(*b.EnrollmentMethod)
			update.EnrollmentMethod = &m
		}

		offering, warnings, err := offerings.Apply(ctx, input.TenantID, input.ID, update)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &UpdateOfferingOutput{}
		out.Body.Offering = toOfferingResponse(offering)
		out.Body.Warnings = toViolationResponses(warnings)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-offering",
		Method:      http.MethodPost,
		Path:        "/api/v1/offerings/{id}/events",
		Summary:     "Trigger a lifecycle event",
		Tags:        []string{"Offerings"},
	}, func(ctx context.Context, input *TransitionInput) (*TransitionOutput, error) {
		offering, err := offerings.Transition(ctx, input.TenantID, input.ID, domain.Event(input.Body.Event))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &TransitionOutput{Body: toOfferingResponse(offering)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "enroll",
		Method:      http.MethodPost,
		Path:        "/api/v1/offerings/{id}/enrollments",
		Summary:     "Enroll a learner",
		Tags:        []string{"Enrollments"},
	}, func(ctx context.Context, input *EnrollInput) (*EnrollOutput, error) {
		enrollment, err := enrollments.Enroll(ctx, input.TenantID, input.ID, input.Body.UserID, input.Body.InviteToken)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &EnrollOutput{Body: toEnrollmentResponse(enrollment)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-enrollment",
		Method:      http.MethodDelete,
		Path:        "/api/v1/offerings/{id}/enrollments/{userID}",
		Summary:     "Cancel a learner's enrollment",
		Tags:        []string{"Enrollments"},
	}, func(ctx context.Context, input *CancelInput) (*CancelOutput, error) {
		if err := enrollments.Cancel(ctx, input.TenantID, input.ID, input.UserID); err != nil {
			return nil, toHumaError(err)
		}
		return &CancelOutput{Status: http.StatusNoContent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-enrollment",
		Method:      http.MethodPost,
		Path:        "/api/v1/offerings/{id}/enrollments/{userID}/completion",
		Summary:     "Mark a learner's enrollment completed",
		Tags:        []string{"Enrollments"},
	}, func(ctx context.Context, input *CompleteInput) (*CompleteOutput, error) {
		enrollment, err := enrollments.Complete(ctx, input.TenantID, input.ID, input.UserID, input.Body.Score)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CompleteOutput{Body: toEnrollmentResponse(enrollment)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-enrollment",
		Method:      http.MethodPost,
		Path:        "/api/v1/offerings/{id}/enrollments/{userID}/review",
		Summary:     "Approve or reject a pending enrollment",
		Tags:        []string{"Enrollments"},
	}, func(ctx context.Context, input *ReviewInput) (*ReviewOutput, error) {
		enrollment, err := enrollments.Review(ctx, input.TenantID, input.ID, input.UserID, input.Body.Approve)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ReviewOutput{Body: toEnrollmentResponse(enrollment)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-enrollments",
		Method:      http.MethodGet,
		Path:        "/api/v1/offerings/{id}/enrollments",
		Summary:     "List an offering's enrollments",
		Tags:        []string{"Enrollments"},
	}, func(ctx context.Context, input *ListEnrollmentsInput) (*ListEnrollmentsOutput, error) {
		found, err := enrollments.ListByOffering(ctx, input.TenantID, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		resp := make([]EnrollmentResponse, len(found))
		for i, e := range found {
			resp[i] = toEnrollmentResponse(e)
		}
		return &ListEnrollmentsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-lifecycle-sweep",
		Method:      http.MethodPost,
		Path:        "/api/v1/lifecycle/sweep",
		Summary:     "Run the lifecycle sweep now",
		Tags:        []string{"Lifecycle"},
	}, func(ctx context.Context, _ *SweepInput) (*SweepOutput, error) {
		report, err := lifecycle.Run(ctx)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &SweepOutput{}
		out.Body.Started = toPhaseReportResponse(report.Started)
		out.Body.Closed = toPhaseReportResponse(report.Closed)
		return out, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrOfferingNotFound) {
		return huma.Error404NotFound("offering not found")
	}
	if errors.Is(err, domain.ErrEnrollmentNotFound) {
		return huma.Error404NotFound("enrollment not found")
	}

	var ruleErr *domain.RuleViolationError
	if errors.As(err, &ruleErr) {
		details := make([]error, len(ruleErr.Violations))
		for i, v := range ruleErr.Violations {
			details[i] = &huma.ErrorDetail{
				Message:  v.Message,
				Location: v.RuleCode,
				Value:    string(v.Severity),
			}
		}
		return huma.Error422UnprocessableEntity("configuration rejected", details...)
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	var periodErr *domain.EnrollmentPeriodClosedError
	if errors.As(err, &periodErr) {
		return huma.Error422UnprocessableEntity(periodErr.Error())
	}

	var progressErr *domain.ProgressBelowMinimumError
	if errors.As(err, &progressErr) {
		return huma.Error422UnprocessableEntity(progressErr.Error())
	}

	var inviteErr *domain.InviteOnlyError
	if errors.As(err, &inviteErr) {
		return huma.Error403Forbidden(inviteErr.Error())
	}

	// State and capacity conflicts: the request was well-formed but the
	// current state refuses it.
	var capErr *domain.CapacityExceededError
	var lowCapErr *domain.CapacityBelowActiveError
	var dupErr *domain.AlreadyEnrolledError
	var frozenErr *domain.FieldImmutableError
	var cancelErr *domain.CannotCancelCompletedError
	var stateErr *domain.EnrollmentStateError
	if errors.As(err, &capErr) || errors.As(err, &lowCapErr) || errors.As(err, &dupErr) ||
		errors.As(err, &frozenErr) || errors.As(err, &cancelErr) || errors.As(err, &stateErr) {
		return huma.Error409Conflict(err.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
