package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/heshamtamer/RPM/internal/auth"
	"github.com/heshamtamer/RPM/internal/db"
	apperrors "github.com/heshamtamer/RPM/internal/errors"
	"github.com/heshamtamer/RPM/internal/logger"
)

// PatientStore is the persistence contract for patient and device records.
type PatientStore interface {
	ListByUserID(ctx context.Context, userID int64) ([]db.Patient, error)
	GetByID(ctx context.Context, id int64) (*db.Patient, error)
	Create(ctx context.Context, patient *db.Patient) error
	CreateWithDevices(ctx context.Context, patient *db.Patient, deviceIDs []string) ([]db.Device, error)
	Update(ctx context.Context, patient *db.Patient) error
	Delete(ctx context.Context, id int64) error
	AddDevice(ctx context.Context, patientID int64, deviceID string) (*db.Device, error)
	RemoveDevice(ctx context.Context, patientID int64, deviceID string) (*db.Device, error)
	ListDevices(ctx context.Context, patientID int64) ([]db.Device, error)
}

type PatientHandlers struct {
	patients PatientStore
	log      *logger.Logger
}

func NewPatientHandlers(patients PatientStore) *PatientHandlers {
	return &PatientHandlers{
		patients: patients,
		log:      logger.Default().WithComponent("patients"),
	}
}

// Request/Response types

type CreatePatientRequest struct {
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Phone   string   `json:"phone"`
	Devices []string `json:"devices,omitempty"`
}

type UpdatePatientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type DeviceRequest struct {
	DeviceID string `json:"device_id"`
}

type PatientResponse struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"userId"`
	Name      string           `json:"name"`
	Email     string           `json:"email"`
	Phone     string           `json:"phone"`
	Devices   []DeviceResponse `json:"devices,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

type DeviceResponse struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"deviceId"`
	PatientID int64     `json:"patientId"`
	CreatedAt time.Time `json:"createdAt"`
}

func patientResponse(p *db.Patient, devices []db.Device) PatientResponse {
	resp := PatientResponse{
		ID:        p.ID,
		UserID:    p.UserID,
		Name:      p.Name,
		Email:     p.Email,
		Phone:     p.Phone,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	for _, d := range devices {
		resp.Devices = append(resp.Devices, deviceResponse(&d))
	}
	return resp
}

func deviceResponse(d *db.Device) DeviceResponse {
	return DeviceResponse{
		ID:        d.ID,
		DeviceID:  d.DeviceID,
		PatientID: d.PatientID,
		CreatedAt: d.CreatedAt,
	}
}

// List handles GET /api/patients
func (h *PatientHandlers) List(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	userCtx := auth.GetUserFromContext(r.Context())
	if userCtx == nil {
		apperrors.WriteError(w, requestID, apperrors.Unauthorized("not authenticated"))
		return
	}

	patients, err := h.patients.ListByUserID(r.Context(), userCtx.UserID)
	if err != nil {
		h.log.Error(r.Context(), "failed to list patients", err)
		apperrors.WriteError(w, requestID, apperrors.DatabaseError("failed to fetch patients"))
		return
	}

	responses := make([]PatientResponse, 0, len(patients))
	for i := range patients {
		responses = append(responses, patientResponse(&patients[i], nil))
	}

	apperrors.WriteJSON(w, requestID, http.StatusOK, responses)
}

// Create handles POST /api/patients. An optional devices list makes the
// insert transactional: the patient and all its devices land together or
// not at all.
func (h *PatientHandlers) Create(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	userCtx := auth.GetUserFromContext(r.Context())
	if userCtx == nil {
		apperrors.WriteError(w, requestID, apperrors.Unauthorized("not authenticated"))
		return
	}

	var req CreatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid request body"))
		return
	}

	if req.Name == "" || req.Email == "" || req.Phone == "" {
		apperrors.WriteError(w, requestID, apperrors.ValidationError("name, email and phone are required"))
		return
	}

	patient := &db.Patient{
		UserID: userCtx.UserID,
		Name:   req.Name,
		Email:  req.Email,
		Phone:  req.Phone,
	}

	var devices []db.Device
	var err error
	if len(req.Devices) > 0 {
		devices, err = h.patients.CreateWithDevices(r.Context(), patient, req.Devices)
	} else {
		err = h.patients.Create(r.Context(), patient)
	}
	if err != nil {
		h.log.Error(r.Context(), "failed to create patient", err)
		apperrors.WriteError(w, requestID, apperrors.DatabaseError("failed to create patient"))
		return
	}

	apperrors.WriteJSON(w, requestID, http.StatusCreated, patientResponse(patient, devices))
}

// Get handles GET /api/patients/{id}
func (h *PatientHandlers) Get(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	patient, ok := h.ownedPatient(w, r)
	if !ok {
		return
	}

	devices, err := h.patients.ListDevices(r.Context(), patient.ID)
	if err != nil {
		h.log.Error(r.Context(), "failed to list devices", err)
		apperrors.WriteError(w, requestID, apperrors.DatabaseError("failed to fetch patient"))
		return
	}

	apperrors.WriteJSON(w, requestID, http.StatusOK, patientResponse(patient, devices))
}

// Update handles PUT /api/patients/{id}
func (h *PatientHandlers) Update(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	patient, ok := h.ownedPatient(w, r)
	if !ok {
		return
	}

	var req UpdatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid request body"))
		return
	}

	if req.Name == "" || req.Email == "" || req.Phone == "" {
		apperrors.WriteError(w, requestID, apperrors.ValidationError("name, email and phone are required"))
		return
	}

	patient.Name = req.Name
	patient.Email = req.Email
	patient.Phone = req.Phone

	if err := h.patients.Update(r.Context(), patient); err != nil {
		if errors.Is(err, db.ErrPatientNotFound) {
			apperrors.WriteError(w, requestID, apperrors.PatientNotFound())
			return
		}
		h.log.Error(r.Context(), "failed to update patient", err)
		apperrors.WriteError(w, requestID, apperrors.DatabaseError("failed to update patient"))
		return
	}

	apperrors.WriteJSON(w, requestID, http.StatusOK, patientResponse(patient, nil))
}

// Delete handles DELETE /api/patients/{id}
func (h *PatientHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	patient, ok := h.ownedPatient(w, r)
	if !ok {
		return
	}

	if err := h.patients.Delete(r.Context(), patient.ID); err != nil {
		if errors.Is(err, db.ErrPatientNotFound) {
			apperrors.WriteError(w, requestID, apperrors.PatientNotFound())
			return
		}
		h.log.Error(r.Context(), "failed to delete patient", err)
		apperrors.WriteError(w, requestID, apperrors.DatabaseError("failed to delete patient"))
		return
	}

	apperrors.WriteJSON(w, requestID, http.StatusOK, patientResponse(patient, nil))
}

// AddDevice handles POST /api/patients/{id}/devices
func (h *PatientHandlers) AddDevice(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	patient, ok := h.ownedPatient(w, r)
	if !ok {
		return
	}

	var req DeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid request body"))
		return
	}

	if req.DeviceID == "" {
		apperrors.WriteError(w, requestID, apperrors.ValidationError("device_id is required"))
		return
	}

	device, err := h.patients.AddDevice(r.Context(), patient.ID, req.DeviceID)
	if err != nil {
		if errors.Is(err, db.ErrDeviceExists) {
			apperrors.WriteError(w, requestID, apperrors.BadRequest("device already attached to patient"))
			return
		}
		h.log.Error(r.Context(), "failed to attach device", err)
		apperrors.WriteError(w, requestID, apperrors.DatabaseError("failed to attach device"))
		return
	}

	apperrors.WriteJSON(w, requestID, http.StatusCreated, deviceResponse(device))
}

// RemoveDevice handles DELETE /api/patients/{id}/devices
func (h *PatientHandlers) RemoveDevice(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	patient, ok := h.ownedPatient(w, r)
	if !ok {
		return
	}

	var req DeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid request body"))
		return
	}

	if req.DeviceID == "" {
		apperrors.WriteError(w, requestID, apperrors.ValidationError("device_id is required"))
		return
	}

	device, err := h.patients.RemoveDevice(r.Context(), patient.ID, req.DeviceID)
	if err != nil {
		if errors.Is(err, db.ErrDeviceNotFound) {
			apperrors.WriteError(w, requestID, apperrors.DeviceNotFound())
			return
		}
		h.log.Error(r.Context(), "failed to detach device", err)
		apperrors.WriteError(w, requestID, apperrors.DatabaseError("failed to detach device"))
		return
	}

	apperrors.WriteJSON(w, requestID, http.StatusOK, deviceResponse(device))
}

// ownedPatient resolves the {id} path value to a patient owned by the
// authenticated user, writing the error response itself when it cannot.
func (h *PatientHandlers) ownedPatient(w http.ResponseWriter, r *http.Request) (*db.Patient, bool) {
	requestID := apperrors.GetRequestID(r.Context())

	userCtx := auth.GetUserFromContext(r.Context())
	if userCtx == nil {
		apperrors.WriteError(w, requestID, apperrors.Unauthorized("not authenticated"))
		return nil, false
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid patient id"))
		return nil, false
	}

	patient, err := h.patients.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrPatientNotFound) {
			apperrors.WriteError(w, requestID, apperrors.PatientNotFound())
			return nil, false
		}
		h.log.Error(r.Context(), "failed to fetch patient", err)
		apperrors.WriteError(w, requestID, apperrors.DatabaseError("failed to fetch patient"))
		return nil, false
	}

	if patient.UserID != userCtx.UserID {
		apperrors.WriteError(w, requestID, apperrors.Forbidden("patient belongs to another user"))
		return nil, false
	}

	return patient, true
}
