package models

import (
	"fmt"
	"time"
)

// FormData is the flattened view of a request that every submission channel
// consumes: one combined address line plus the individual components, with
// optional fields defaulted. Built once per submission episode by Flatten.
type FormData struct {
	// Contact
	ContactName string
	CompanyName string
	Phone       string
	Email       string

	// Location
	Address string // "street, city, state zip"
	Street  string
	City    string
	State   string
	ZipCode string
	County  string

	// Work details
	WorkType        string
	WorkDescription string
	StartDate       time.Time
	DurationDays    int
	Depth           string

	// Work area
	NearestCrossStreet  string
	WorkAreaLength      string
	WorkAreaWidth       string
	MarkedArea          bool
	MarkingInstructions string

	// Flags
	ExplosivesUsed bool
	EmergencyWork  bool
	PermitNumber   string

	RequestID string
	CreatedAt time.Time
}

// Flatten builds the normalized per-channel view of a request.
func Flatten(req *Request) FormData {
	duration := req.DurationDays
	if duration <= 0 {
		duration = 1
	}
	depth := req.Depth
	if depth == "" {
		depth = "Unknown"
	}
	return FormData{
		ContactName: req.ContactName,
		CompanyName: req.CompanyName,
		Phone:       req.Phone,
		Email:       req.Email,

		Address: fmt.Sprintf("%s, %s, %s %s", req.Street, req.City, req.State, req.ZipCode),
		Street:  req.Street,
		City:    req.City,
		State:   req.State,
		ZipCode: req.ZipCode,
		County:  req.County,

		WorkType:        req.WorkType,
		WorkDescription: req.WorkDescription,
		StartDate:       req.StartDate,
		DurationDays:    duration,
		Depth:           depth,

		NearestCrossStreet:  req.NearestCrossStreet,
		WorkAreaLength:      req.WorkAreaLength,
		WorkAreaWidth:       req.WorkAreaWidth,
		MarkedArea:          req.MarkedArea,
		MarkingInstructions: req.MarkingInstructions,

		ExplosivesUsed: req.ExplosivesUsed,
		EmergencyWork:  req.EmergencyWork,
		PermitNumber:   req.PermitNumber,

		RequestID: req.ID,
		CreatedAt: req.CreatedAt,
	}
}

// FieldMap returns the flat field-name view used by per-district API payload
// mapping and by form-fill instruction generation.
func (f FormData) FieldMap() map[string]string {
	return map[string]string{
		"contactName":         f.ContactName,
		"companyName":         f.CompanyName,
		"phone":               f.Phone,
		"email":               f.Email,
		"address":             f.Address,
		"street":              f.Street,
		"city":                f.City,
		"state":               f.State,
		"zipCode":             f.ZipCode,
		"county":              f.County,
		"workType":            f.WorkType,
		"workDescription":     f.WorkDescription,
		"startDate":           f.StartDate.Format("2006-01-02"),
		"duration":            fmt.Sprintf("%d", f.DurationDays),
		"depth":               f.Depth,
		"nearestCrossStreet":  f.NearestCrossStreet,
		"workAreaLength":      f.WorkAreaLength,
		"workAreaWidth":       f.WorkAreaWidth,
		"markingInstructions": f.MarkingInstructions,
		"permitNumber":        f.PermitNumber,
		"requestId":           f.RequestID,
	}
}
