package booking

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
)

// BookRequest is the structured booking payload.
type BookRequest struct {
	DoctorID         string `json:"doctor_id"`
	TimeLabel        string `json:"time_label" validate:"required"`
	Reason           string `json:"reason" validate:"required"`
	Location         string `json:"location"`
	FirstName        string `json:"first_name" validate:"required"`
	LastName         string `json:"last_name" validate:"required"`
	Email            string `json:"email" validate:"required,email"`
	Phone            string `json:"phone" validate:"required,min=7,max=20"`
	Age              int    `json:"age" validate:"omitempty,min=0,max=130"`
	Gender           string `json:"gender" validate:"omitempty,max=32"`
	MedicalID        string `json:"medical_id"`
	Allergies        string `json:"allergies"`
	EmergencyContact string `json:"emergency_contact"`
	EmergencyPhone   string `json:"emergency_phone" validate:"omitempty,min=7,max=20"`
}

func (r BookRequest) patientDetails() *appointments.PatientDetails {
	return &appointments.PatientDetails{
		FirstName:        strings.TrimSpace(r.FirstName),
		LastName:         strings.TrimSpace(r.LastName),
		Email:            strings.TrimSpace(r.Email),
		Phone:            strings.TrimSpace(r.Phone),
		Age:              r.Age,
		Gender:           strings.TrimSpace(r.Gender),
		MedicalID:        strings.TrimSpace(r.MedicalID),
		Allergies:        strings.TrimSpace(r.Allergies),
		EmergencyContact: strings.TrimSpace(r.EmergencyContact),
		EmergencyPhone:   strings.TrimSpace(r.EmergencyPhone),
	}
}

// ValidationError lists the request fields that failed validation, by their
// JSON names.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("booking: invalid fields: %s", strings.Join(e.Fields, ", "))
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateBookRequest(req BookRequest) error {
	req = trimmed(req)
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("booking: validate request: %w", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return &ValidationError{Fields: fields}
}

// trimmed strips surrounding whitespace so blank strings fail "required".
func trimmed(req BookRequest) BookRequest {
	req.TimeLabel = strings.TrimSpace(req.TimeLabel)
	req.Reason = strings.TrimSpace(req.Reason)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.EmergencyPhone = strings.TrimSpace(req.EmergencyPhone)
	return req
}
