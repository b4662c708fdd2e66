package ekamcp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerTools wires every exposed operation onto the MCP server. Each
// handler is a thin bridge: bind arguments, call the EMR wrapper, render the
// payload or the typed error.
func registerTools(s *server.MCPServer, emr *EMRClient) {
	s.AddTool(mcp.NewTool("search_patients",
		mcp.WithDescription("Search patient profiles by username, mobile, or full name (prefix match)"),
		mcp.WithString("prefix", mcp.Required(), mcp.Description("Search term to match against patient profiles")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results to return")),
		mcp.WithString("select", mcp.Description("Comma-separated list of additional fields to include")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			Prefix string `json:"prefix"`
			Limit  int    `json:"limit"`
			Select string `json:"select"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return toolResult(emr.SearchPatients(ctx, args.Prefix, args.Limit, args.Select))
	})

	s.AddTool(mcp.NewTool("get_patient_details",
		mcp.WithDescription("Get patient profile details by patient ID"),
		mcp.WithString("patient_id", mcp.Required(), mcp.Description("Patient's unique identifier")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			PatientID string `json:"patient_id"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return toolResult(emr.GetPatientDetails(ctx, args.PatientID))
	})

	s.AddTool(mcp.NewTool("add_patient",
		mcp.WithDescription("Register a new patient profile"),
		mcp.WithObject("profile", mcp.Required(), mcp.Description("Patient profile fields")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			Profile map[string]any `json:"profile"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return toolResult(emr.AddPatient(ctx, args.Profile))
	})

	s.AddTool(mcp.NewTool("update_patient",
		mcp.WithDescription("Update fields on an existing patient profile"),
		mcp.WithString("patient_id", mcp.Required(), mcp.Description("Patient's unique identifier")),
		mcp.WithObject("updates", mcp.Required(), mcp.Description("Profile fields to change")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			PatientID string         `json:"patient_id"`
			Updates   map[string]any `json:"updates"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return toolResult(emr.UpdatePatient(ctx, args.PatientID, args.Updates))
	})

	s.AddTool(mcp.NewTool("archive_patient",
		mcp.WithDescription("Archive a patient profile"),
		mcp.WithString("patient_id", mcp.Required(), mcp.Description("Patient's unique identifier")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			PatientID string `json:"patient_id"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return toolResult(emr.ArchivePatient(ctx, args.PatientID))
	})

	s.AddTool(mcp.NewTool("get_patient_by_mobile",
		mcp.WithDescription("Retrieve patient profiles by mobile number"),
		mcp.WithString("mobile", mcp.Required(), mcp.Description("Patient's mobile number")),
		mcp.WithBoolean("full_profile", mcp.Description("Return the complete profile instead of the summary")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			Mobile      string `json:"mobile"`
			FullProfile bool   `json:"full_profile"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return toolResult(emr.GetPatientByMobile(ctx, args.Mobile, args.FullProfile))
	})

	s.AddTool(mcp.NewTool("list_patients",
		mcp.WithDescription("List all patient profiles (minified)"),
	), func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return toolResult(emr.ListPatients(ctx))
	})

	s.AddTool(mcp.NewTool("get_business_entities",
		mcp.WithDescription("List the doctors and clinics available to this account"),
	), func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return toolResult(emr.GetBusinessEntities(ctx))
	})

	s.AddTool(mcp.NewTool("get_clinic_details",
		mcp.WithDescription("Get clinic details by clinic ID"),
		mcp.WithString("clinic_id", mcp.Required(), mcp.Description("Clinic's unique identifier")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			ClinicID string `json:"clinic_id"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return toolResult(emr.GetClinicDetails(ctx, args.ClinicID))
	})

	s.AddTool(mcp.NewTool("get_doctor_profile",
		mcp.WithDescription("Get doctor profile by doctor ID"),
		mcp.WithString("doctor_id", mcp.Required(), mcp.Description("Doctor's unique identifier")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			DoctorID string `json:"doctor_id"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return toolResult(emr.GetDoctorProfile(ctx, args.DoctorID))
	})

	s.AddTool(mcp.NewTool("get_doctor_services",
		mcp.WithDescription("List the consultation services a doctor offers"),
		mcp.WithString("doctor_id", mcp.Required(), mcp.Description("Doctor's unique identifier")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			DoctorID string `json:"doctor_id"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return toolResult(emr.GetDoctorServices(ctx, args.DoctorID))
	})

	s.AddTool(mcp.NewTool("get_appointment_slots",
		mcp.WithDescription("Get available appointment slots for a doctor at a clinic"),
		mcp.WithString("doctor_id", mcp.Required(), mcp.Description("Doctor's unique identifier")),
		mcp.WithString("clinic_id", mcp.Required(), mcp.Description("Clinic's unique identifier")),
		mcp.WithString("start_date", mcp.Required(), mcp.Description("Range start date (YYYY-MM-DD)")),
		mcp.WithString("end_date", mcp.Required(), mcp.Description("Range end date (YYYY-MM-DD)")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			DoctorID  string `json:"doctor_id"`
			ClinicID  string `json:"clinic_id"`
			StartDate string `json:"start_date"`
			EndDate   string `json:"end_date"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return toolResult(emr.GetAppointmentSlots(ctx, args.DoctorID, args.ClinicID, args.StartDate, args.EndDate))
	})

	s.AddTool(mcp.NewTool("book_appointment",
		mcp.WithDescription("Book an appointment for a patient"),
		mcp.WithObject("booking", mcp.Required(), mcp.Description("Booking payload: patient, doctor, clinic and slot identifiers")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			Booking map[string]any `json:"booking"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return toolResult(emr.BookAppointment(ctx, args.Booking))
	})

	s.AddTool(mcp.NewTool("list_appointments",
		mcp.WithDescription("List appointments, optionally filtered by doctor, clinic, patient or date range"),
		mcp.WithString("doctor_id", mcp.Description("Filter by doctor")),
		mcp.WithString("clinic_id", mcp.Description("Filter by clinic")),
		mcp.WithString("patient_id", mcp.Description("Filter by patient")),
		mcp.WithString("start_date", mcp.Description("Range start date (YYYY-MM-DD)")),
		mcp.WithString("end_date", mcp.Description("Range end date (YYYY-MM-DD)")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			DoctorID  string `json:"doctor_id"`
			ClinicID  string `json:"clinic_id"`
			PatientID string `json:"patient_id"`
			StartDate string `json:"start_date"`
			EndDate   string `json:"end_date"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		filters := url.Values{}
		setIfPresent(filters, "doctor_id", args.DoctorID)
		setIfPresent(filters, "clinic_id", args.ClinicID)
		setIfPresent(filters, "patient_id", args.PatientID)
		setIfPresent(filters, "start_date", args.StartDate)
		setIfPresent(filters, "end_date", args.EndDate)
		return toolResult(emr.ListAppointments(ctx, filters))
	})

	s.AddTool(mcp.NewTool("get_appointment_details",
		mcp.WithDescription("Get appointment details by appointment ID"),
		mcp.WithString("appointment_id", mcp.Required(), mcp.Description("Appointment's unique identifier")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			AppointmentID string `json:"appointment_id"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return toolResult(emr.GetAppointmentDetails(ctx, args.AppointmentID))
	})

	s.AddTool(mcp.NewTool("cancel_appointment",
		mcp.WithDescription("Cancel an appointment"),
		mcp.WithString("appointment_id", mcp.Required(), mcp.Description("Appointment's unique identifier")),
		mcp.WithString("reason", mcp.Description("Cancellation reason")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			AppointmentID string `json:"appointment_id"`
			Reason        string `json:"reason"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		cancelData := map[string]any{}
		if args.Reason != "" {
			cancelData["reason"] = args.Reason
		}
		return toolResult(emr.CancelAppointment(ctx, args.AppointmentID, cancelData))
	})

	s.AddTool(mcp.NewTool("update_appointment",
		mcp.WithDescription("Update details on an existing appointment"),
		mcp.WithString("appointment_id", mcp.Required(), mcp.Description("Appointment's unique identifier")),
		mcp.WithObject("updates", mcp.Required(), mcp.Description("Appointment fields to change")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			AppointmentID string         `json:"appointment_id"`
			Updates       map[string]any `json:"updates"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return toolResult(emr.UpdateAppointment(ctx, args.AppointmentID, args.Updates))
	})

	s.AddTool(mcp.NewTool("complete_appointment",
		mcp.WithDescription("Mark an appointment as completed"),
		mcp.WithString("appointment_id", mcp.Required(), mcp.Description("Appointment's unique identifier")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			AppointmentID string `json:"appointment_id"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return toolResult(emr.CompleteAppointment(ctx, args.AppointmentID))
	})

	s.AddTool(mcp.NewTool("reschedule_appointment",
		mcp.WithDescription("Reschedule an appointment to a new slot"),
		mcp.WithString("appointment_id", mcp.Required(), mcp.Description("Appointment's unique identifier")),
		mcp.WithObject("reschedule", mcp.Required(), mcp.Description("New slot details")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			AppointmentID string         `json:"appointment_id"`
			Reschedule    map[string]any `json:"reschedule"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return toolResult(emr.RescheduleAppointment(ctx, args.AppointmentID, args.Reschedule))
	})

	s.AddTool(mcp.NewTool("fetch_assessments",
		mcp.WithDescription("Fetch grouped clinical assessments, optionally filtered"),
		mcp.WithString("practitioner_uuid", mcp.Description("Filter by practitioner")),
		mcp.WithString("patient_uuid", mcp.Description("Filter by patient")),
		mcp.WithString("transaction_id", mcp.Description("Filter by transaction")),
		mcp.WithString("wfids", mcp.Description("Comma-separated workflow IDs to include")),
		mcp.WithString("status", mcp.Description("Filter by assessment status")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			PractitionerUUID string `json:"practitioner_uuid"`
			PatientUUID      string `json:"patient_uuid"`
			TransactionID    string `json:"transaction_id"`
			WFIDs            string `json:"wfids"`
			Status           string `json:"status"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		var wfids []string
		if args.WFIDs != "" {
			wfids = strings.Split(args.WFIDs, ",")
		}
		return toolResult(emr.FetchGroupedAssessments(ctx, args.PractitionerUUID, args.PatientUUID, args.TransactionID, wfids, args.Status))
	})

	s.AddTool(mcp.NewTool("get_prescription_details",
		mcp.WithDescription("Get prescription details by prescription ID"),
		mcp.WithString("prescription_id", mcp.Required(), mcp.Description("Prescription's unique identifier")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			PrescriptionID string `json:"prescription_id"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return toolResult(emr.GetPrescriptionDetails(ctx, args.PrescriptionID))
	})
}

func setIfPresent(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}

// toolResult renders a dispatch outcome for the MCP client. Typed API errors
// keep their kind and status visible so the model can correct its behavior.
func toolResult(payload any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		if apiErr, ok := AsAPIError(err); ok {
			return mcp.NewToolResultError(apiErr.Error()), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultStructuredOnly(payload), nil
}
