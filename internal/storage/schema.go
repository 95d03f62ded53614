package storage

// schemaDDL is the idempotent bootstrap schema. Production deployments run
// the same statements through their migration tooling; applying them here
// keeps local and demo environments self-contained.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS events (
    id            TEXT PRIMARY KEY,
    timestamp     TIMESTAMPTZ NOT NULL,
    type          TEXT NOT NULL,
    source_ip     TEXT NOT NULL,
    severity      TEXT NOT NULL,
    details       JSONB NOT NULL DEFAULT '{}',
    anomaly_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    ml_flagged    BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_events_type ON events (type);
CREATE INDEX IF NOT EXISTS idx_events_source_ip ON events (source_ip);

CREATE TABLE IF NOT EXISTS incidents (
    id                        TEXT PRIMARY KEY,
    threat_type               TEXT NOT NULL,
    status                    TEXT NOT NULL DEFAULT 'active',
    severity                  TEXT NOT NULL,
    description               TEXT NOT NULL DEFAULT '',
    confidence                DOUBLE PRECISION NOT NULL DEFAULT 0,
    indicators                JSONB NOT NULL DEFAULT '[]',
    event_id                  TEXT NOT NULL,
    source_ip                 TEXT NOT NULL,
    anomaly_score             DOUBLE PRECISION NOT NULL DEFAULT 0,
    ml_flagged                BOOLEAN NOT NULL DEFAULT FALSE,
    created_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    resolved_at               TIMESTAMPTZ,
    resolved_by               TEXT NOT NULL DEFAULT '',
    resolution_notes          TEXT NOT NULL DEFAULT '',
    investigating_by          TEXT NOT NULL DEFAULT '',
    investigation_started_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents (status);
CREATE INDEX IF NOT EXISTS idx_incidents_created_at ON incidents (created_at DESC);

CREATE TABLE IF NOT EXISTS forensic_reports (
    id             TEXT PRIMARY KEY,
    incident_id    TEXT NOT NULL,
    forensic_data  JSONB NOT NULL DEFAULT '{}',
    gemini_summary TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_reports_incident_id ON forensic_reports (incident_id);

CREATE TABLE IF NOT EXISTS ml_model (
    id         INTEGER PRIMARY KEY,
    model_data TEXT NOT NULL,
    trained_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS devices (
    ip              TEXT PRIMARY KEY,
    status          TEXT NOT NULL DEFAULT 'active',
    quarantined_at  TIMESTAMPTZ,
    reason          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS profiles (
    id         TEXT PRIMARY KEY,
    email      TEXT NOT NULL,
    full_name  TEXT NOT NULL DEFAULT '',
    role       TEXT NOT NULL DEFAULT 'analyst',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS audit_log (
    id         BIGSERIAL PRIMARY KEY,
    actor      TEXT NOT NULL DEFAULT '',
    action     TEXT NOT NULL,
    target     TEXT NOT NULL DEFAULT '',
    detail     TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
