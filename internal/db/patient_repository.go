package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrPatientNotFound = errors.New("patient not found")
var ErrDeviceNotFound = errors.New("device not found for patient")
var ErrDeviceExists = errors.New("device already attached to patient")

type Patient struct {
	ID        int64
	UserID    int64
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Device struct {
	ID        int64
	DeviceID  string
	PatientID int64
	CreatedAt time.Time
}

type PatientRepository struct {
	db *DB
}

func NewPatientRepository(db *DB) *PatientRepository {
	return &PatientRepository{db: db}
}

func (r *PatientRepository) ListByUserID(ctx context.Context, userID int64) ([]Patient, error) {
	query := `
		SELECT id, user_id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE user_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	patients := make([]Patient, 0)
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}

	return patients, rows.Err()
}

func (r *PatientRepository) GetByID(ctx context.Context, id int64) (*Patient, error) {
	query := `
		SELECT id, user_id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`

	p := &Patient{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.UserID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return p, nil
}

func (r *PatientRepository) Create(ctx context.Context, patient *Patient) error {
	query := `
		INSERT INTO patients (user_id, name, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRowContext(ctx, query,
		patient.UserID, patient.Name, patient.Email, patient.Phone,
	).Scan(&patient.ID, &patient.CreatedAt, &patient.UpdatedAt)
}

// CreateWithDevices inserts a patient and its initial devices in a single
// transaction: either every row lands or none of them do.
func (r *PatientRepository) CreateWithDevices(ctx context.Context, patient *Patient, deviceIDs []string) ([]Device, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	patientQuery := `
		INSERT INTO patients (user_id, name, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRowContext(ctx, patientQuery,
		patient.UserID, patient.Name, patient.Email, patient.Phone,
	).Scan(&patient.ID, &patient.CreatedAt, &patient.UpdatedAt)
	if err != nil {
		return nil, err
	}

	deviceQuery := `
		INSERT INTO devices (device_id, patient_id, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, created_at
	`

	devices := make([]Device, 0, len(deviceIDs))
	for _, deviceID := range deviceIDs {
		d := Device{DeviceID: deviceID, PatientID: patient.ID}
		if err := tx.QueryRowContext(ctx, deviceQuery, deviceID, patient.ID).Scan(&d.ID, &d.CreatedAt); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return devices, nil
}

func (r *PatientRepository) Update(ctx context.Context, patient *Patient) error {
	query := `
		UPDATE patients
		SET name = $1, email = $2, phone = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		patient.Name, patient.Email, patient.Phone, patient.ID,
	).Scan(&patient.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPatientNotFound
		}
		return err
	}

	return nil
}

func (r *PatientRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM patients WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPatientNotFound
	}

	return nil
}

func (r *PatientRepository) AddDevice(ctx context.Context, patientID int64, deviceID string) (*Device, error) {
	query := `
		INSERT INTO devices (device_id, patient_id, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, created_at
	`

	d := &Device{DeviceID: deviceID, PatientID: patientID}
	err := r.db.QueryRowContext(ctx, query, deviceID, patientID).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDeviceExists
		}
		return nil, err
	}

	return d, nil
}

func (r *PatientRepository) RemoveDevice(ctx context.Context, patientID int64, deviceID string) (*Device, error) {
	query := `
		DELETE FROM devices
		WHERE device_id = $1 AND patient_id = $2
		RETURNING id, device_id, patient_id, created_at
	`

	d := &Device{}
	err := r.db.QueryRowContext(ctx, query, deviceID, patientID).Scan(
		&d.ID, &d.DeviceID, &d.PatientID, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	return d, nil
}

func (r *PatientRepository) ListDevices(ctx context.Context, patientID int64) ([]Device, error) {
	query := `
		SELECT id, device_id, patient_id, created_at
		FROM devices
		WHERE patient_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := make([]Device, 0)
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.ID, &d.DeviceID, &d.PatientID, &d.CreatedAt); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}

	return devices, rows.Err()
}
