package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates every table the attendance service owns. The users table is
// owned by the identity service; it is created here only so a fresh dev
// database has something to read from.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    full_name TEXT NOT NULL DEFAULT '',
    register_number TEXT,
    department TEXT,
    role TEXT NOT NULL,
    student_category TEXT,
    is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS campus_geofences (
    id TEXT PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    description TEXT,
    latitude DOUBLE PRECISION NOT NULL,
    longitude DOUBLE PRECISION NOT NULL,
    radius_meters DOUBLE PRECISION NOT NULL DEFAULT 500,
    accuracy_threshold DOUBLE PRECISION NOT NULL DEFAULT 50,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    is_primary BOOLEAN NOT NULL DEFAULT FALSE,
    created_by TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS campus_geofences_one_primary
    ON campus_geofences ((TRUE))
    WHERE is_primary AND is_active AND deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS attendance_windows (
    id TEXT PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    start_time TIME NOT NULL,
    end_time TIME NOT NULL,
    days_of_week JSONB NOT NULL DEFAULT '[0,1,2,3,4,5]',
    student_category TEXT,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (end_time > start_time)
);

CREATE TABLE IF NOT EXISTS profile_photos (
    id TEXT PRIMARY KEY,
    student_id TEXT NOT NULL,
    file_path TEXT NOT NULL,
    filename TEXT NOT NULL,
    face_encoding JSONB,
    status TEXT NOT NULL DEFAULT 'PENDING',
    rejection_reason TEXT,
    reviewed_by TEXT,
    reviewed_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS profile_photos_student_idx ON profile_photos (student_id, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS profile_photos_one_approved
    ON profile_photos (student_id) WHERE status = 'APPROVED';

CREATE TABLE IF NOT EXISTS attendance_records (
    id TEXT PRIMARY KEY,
    student_id TEXT NOT NULL,
    attendance_date DATE NOT NULL,
    status TEXT NOT NULL,
    location_latitude DOUBLE PRECISION,
    location_longitude DOUBLE PRECISION,
    location_accuracy DOUBLE PRECISION,
    face_match_confidence DOUBLE PRECISION,
    marked_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (student_id, attendance_date)
);

CREATE TABLE IF NOT EXISTS attendance_attempts (
    id TEXT PRIMARY KEY,
    student_id TEXT NOT NULL,
    attempted_at TIMESTAMPTZ NOT NULL,
    success BOOLEAN NOT NULL,
    failure_reason TEXT,
    failure_details TEXT,
    location_latitude DOUBLE PRECISION,
    location_longitude DOUBLE PRECISION,
    location_accuracy DOUBLE PRECISION,
    face_match_score DOUBLE PRECISION,
    captured_image_path TEXT,
    geofence_id TEXT,
    match_policy TEXT
);

CREATE INDEX IF NOT EXISTS attendance_attempts_student_idx ON attendance_attempts (student_id, attempted_at DESC);

CREATE TABLE IF NOT EXISTS attempt_evidence (
    attempt_id TEXT PRIMARY KEY REFERENCES attendance_attempts(id),
    url TEXT NOT NULL,
    public_id TEXT NOT NULL,
    archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS holidays (
    id TEXT PRIMARY KEY,
    date DATE NOT NULL UNIQUE,
    name VARCHAR(200) NOT NULL,
    description TEXT,
    holiday_type TEXT NOT NULL DEFAULT 'GENERAL',
    is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_by TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS attendance_settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_by TEXT,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// InitSchema applies Schema. Every statement is idempotent.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("error initializing database schema: %w", err)
	}
	return nil
}
