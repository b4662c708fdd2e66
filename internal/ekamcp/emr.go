package ekamcp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// EMRClient maps the EMR operations onto dispatcher calls. Methods here are
// deliberately thin: parameter-to-URL mappings with no business logic.
type EMRClient struct {
	api *Client
}

func NewEMRClient(api *Client) *EMRClient {
	return &EMRClient{api: api}
}

// Patient APIs

func (c *EMRClient) AddPatient(ctx context.Context, profile map[string]any) (any, error) {
	return c.api.Dispatch(ctx, http.MethodPost, "/profiles/v1/patient/", nil, profile)
}

func (c *EMRClient) GetPatientDetails(ctx context.Context, patientID string) (any, error) {
	return c.api.Dispatch(ctx, http.MethodGet, "/profiles/v1/patient/"+url.PathEscape(patientID), nil, nil)
}

func (c *EMRClient) SearchPatients(ctx context.Context, prefix string, limit int, selectFields string) (any, error) {
	params := url.Values{"prefix": {prefix}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if selectFields != "" {
		params.Set("select", selectFields)
	}
	return c.api.Dispatch(ctx, http.MethodGet, "/profiles/v1/patient/search", params, nil)
}

func (c *EMRClient) ListPatients(ctx context.Context) (any, error) {
	return c.api.Dispatch(ctx, http.MethodGet, "/profiles/v1/patient/minified/", nil, nil)
}

func (c *EMRClient) UpdatePatient(ctx context.Context, patientID string, updates map[string]any) (any, error) {
	return c.api.Dispatch(ctx, http.MethodPatch, "/profiles/v1/patient/"+url.PathEscape(patientID), nil, updates)
}

func (c *EMRClient) ArchivePatient(ctx context.Context, patientID string) (any, error) {
	return c.api.Dispatch(ctx, http.MethodDelete, "/profiles/v1/patient/"+url.PathEscape(patientID), nil, nil)
}

func (c *EMRClient) GetPatientByMobile(ctx context.Context, mobile string, fullProfile bool) (any, error) {
	params := url.Values{"mob": {mobile}}
	if fullProfile {
		params.Set("full_profile", "true")
	}
	return c.api.Dispatch(ctx, http.MethodGet, "/profiles/v1/patient/by-mobile/", params, nil)
}

// Doctor and clinic APIs

func (c *EMRClient) GetBusinessEntities(ctx context.Context) (any, error) {
	return c.api.Dispatch(ctx, http.MethodGet, "/dr/v1/business/entities", nil, nil)
}

func (c *EMRClient) GetClinicDetails(ctx context.Context, clinicID string) (any, error) {
	return c.api.Dispatch(ctx, http.MethodGet, "/dr/v1/business/clinic/"+url.PathEscape(clinicID), nil, nil)
}

func (c *EMRClient) GetDoctorProfile(ctx context.Context, doctorID string) (any, error) {
	return c.api.Dispatch(ctx, http.MethodGet, "/dr/v1/doctor/"+url.PathEscape(doctorID), nil, nil)
}

func (c *EMRClient) GetDoctorServices(ctx context.Context, doctorID string) (any, error) {
	return c.api.Dispatch(ctx, http.MethodGet, "/dr/v1/doctor/service/"+url.PathEscape(doctorID), nil, nil)
}

// Appointment APIs

func (c *EMRClient) GetAppointmentSlots(ctx context.Context, doctorID, clinicID, startDate, endDate string) (any, error) {
	endpoint := fmt.Sprintf("/dr/v1/doctor/%s/clinic/%s/appointment/slot",
		url.PathEscape(doctorID), url.PathEscape(clinicID))
	params := url.Values{
		"start_date": {startDate},
		"end_date":   {endDate},
	}
	return c.api.Dispatch(ctx, http.MethodGet, endpoint, params, nil)
}

func (c *EMRClient) BookAppointment(ctx context.Context, booking map[string]any) (any, error) {
	return c.api.Dispatch(ctx, http.MethodPost, "/dr/v1/appointment", nil, booking)
}

func (c *EMRClient) ListAppointments(ctx context.Context, filters url.Values) (any, error) {
	return c.api.Dispatch(ctx, http.MethodGet, "/dr/v1/appointment", filters, nil)
}

func (c *EMRClient) GetAppointmentDetails(ctx context.Context, appointmentID string) (any, error) {
	return c.api.Dispatch(ctx, http.MethodGet, "/dr/v1/appointment/"+url.PathEscape(appointmentID), nil, nil)
}

func (c *EMRClient) UpdateAppointment(ctx context.Context, appointmentID string, updates map[string]any) (any, error) {
	return c.api.Dispatch(ctx, http.MethodPatch, "/dr/v2/appointment/"+url.PathEscape(appointmentID), nil, updates)
}

func (c *EMRClient) CompleteAppointment(ctx context.Context, appointmentID string) (any, error) {
	return c.api.Dispatch(ctx, http.MethodPost,
		"/dr/v1/appointment/"+url.PathEscape(appointmentID)+"/complete", nil, nil)
}

func (c *EMRClient) CancelAppointment(ctx context.Context, appointmentID string, cancelData map[string]any) (any, error) {
	return c.api.Dispatch(ctx, http.MethodPut,
		"/dr/v1/appointment/"+url.PathEscape(appointmentID)+"/cancel", nil, cancelData)
}

func (c *EMRClient) RescheduleAppointment(ctx context.Context, appointmentID string, reschedule map[string]any) (any, error) {
	return c.api.Dispatch(ctx, http.MethodPut,
		"/dr/v1/appointment/"+url.PathEscape(appointmentID)+"/reschedule", nil, reschedule)
}

// Assessment and prescription APIs

func (c *EMRClient) FetchGroupedAssessments(ctx context.Context, practitionerUUID, patientUUID, transactionID string, wfids []string, status string) (any, error) {
	params := url.Values{}
	if practitionerUUID != "" {
		params.Set("practitioner_uuid", practitionerUUID)
	}
	if patientUUID != "" {
		params.Set("patient_uuid", patientUUID)
	}
	if transactionID != "" {
		params.Set("transaction_id", transactionID)
	}
	if len(wfids) > 0 {
		params.Set("wfids", strings.Join(wfids, ","))
	}
	if status != "" {
		params.Set("status", status)
	}
	return c.api.Dispatch(ctx, http.MethodGet, "/assessment/api/fetch_interviews/v2/", params, nil)
}

func (c *EMRClient) GetPrescriptionDetails(ctx context.Context, prescriptionID string) (any, error) {
	return c.api.Dispatch(ctx, http.MethodGet, "/dr/v1/prescription/"+url.PathEscape(prescriptionID), nil, nil)
}
