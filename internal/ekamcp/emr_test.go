package ekamcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureServer records the last request and answers with an empty object.
type captureServer struct {
	method string
	path   string
	query  url.Values
	body   map[string]any
}

func newCaptureServer(t *testing.T, c *captureServer) *EMRClient {
	t.Helper()
	srv := newHTTPTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.method = r.Method
		c.path = r.URL.Path
		c.query = r.URL.Query()
		c.body = nil
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &c.body)
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return NewEMRClient(newTestClient(t, srv.URL, nil))
}

func TestSearchPatientsMapping(t *testing.T) {
	var c captureServer
	emr := newCaptureServer(t, &c)

	_, err := emr.SearchPatients(context.Background(), "rahul", 5, "gender,dob")
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, c.method)
	assert.Equal(t, "/profiles/v1/patient/search", c.path)
	assert.Equal(t, "rahul", c.query.Get("prefix"))
	assert.Equal(t, "5", c.query.Get("limit"))
	assert.Equal(t, "gender,dob", c.query.Get("select"))
}

func TestSearchPatientsOmitsEmptyParams(t *testing.T) {
	var c captureServer
	emr := newCaptureServer(t, &c)

	_, err := emr.SearchPatients(context.Background(), "rahul", 0, "")
	require.NoError(t, err)

	assert.False(t, c.query.Has("limit"))
	assert.False(t, c.query.Has("select"))
}

func TestGetPatientByMobileMapping(t *testing.T) {
	var c captureServer
	emr := newCaptureServer(t, &c)

	_, err := emr.GetPatientByMobile(context.Background(), "+919999999999", true)
	require.NoError(t, err)

	assert.Equal(t, "/profiles/v1/patient/by-mobile/", c.path)
	assert.Equal(t, "+919999999999", c.query.Get("mob"))
	assert.Equal(t, "true", c.query.Get("full_profile"))
}

func TestGetAppointmentSlotsMapping(t *testing.T) {
	var c captureServer
	emr := newCaptureServer(t, &c)

	_, err := emr.GetAppointmentSlots(context.Background(), "doc1", "clinic2", "2026-09-01", "2026-09-07")
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, c.method)
	assert.Equal(t, "/dr/v1/doctor/doc1/clinic/clinic2/appointment/slot", c.path)
	assert.Equal(t, "2026-09-01", c.query.Get("start_date"))
	assert.Equal(t, "2026-09-07", c.query.Get("end_date"))
}

func TestBookAppointmentMapping(t *testing.T) {
	var c captureServer
	emr := newCaptureServer(t, &c)

	_, err := emr.BookAppointment(context.Background(), map[string]any{
		"patient_id": "p1",
		"slot_id":    "s1",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "/dr/v1/appointment", c.path)
	assert.Equal(t, "p1", c.body["patient_id"])
	assert.Equal(t, "s1", c.body["slot_id"])
}

func TestCancelAppointmentMapping(t *testing.T) {
	var c captureServer
	emr := newCaptureServer(t, &c)

	_, err := emr.CancelAppointment(context.Background(), "apt9", map[string]any{"reason": "patient request"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, c.method)
	assert.Equal(t, "/dr/v1/appointment/apt9/cancel", c.path)
	assert.Equal(t, "patient request", c.body["reason"])
}

func TestGetPrescriptionDetailsMapping(t *testing.T) {
	var c captureServer
	emr := newCaptureServer(t, &c)

	_, err := emr.GetPrescriptionDetails(context.Background(), "rx42")
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, c.method)
	assert.Equal(t, "/dr/v1/prescription/rx42", c.path)
}

func TestFetchGroupedAssessmentsMapping(t *testing.T) {
	var c captureServer
	emr := newCaptureServer(t, &c)

	_, err := emr.FetchGroupedAssessments(context.Background(), "pract1", "pat2", "", []string{"wf1", "wf2"}, "COMPLETED")
	require.NoError(t, err)

	assert.Equal(t, "/assessment/api/fetch_interviews/v2/", c.path)
	assert.Equal(t, "pract1", c.query.Get("practitioner_uuid"))
	assert.Equal(t, "pat2", c.query.Get("patient_uuid"))
	assert.Equal(t, "wf1,wf2", c.query.Get("wfids"))
	assert.Equal(t, "COMPLETED", c.query.Get("status"))
	assert.False(t, c.query.Has("transaction_id"))
}
