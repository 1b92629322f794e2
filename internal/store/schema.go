package store

// currentSchemaVersion is the target schema version for this build.
const currentSchemaVersion = 1

const schemaV1 = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE snapshots (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    customer      TEXT NOT NULL,
    created_at    TEXT NOT NULL,
    window_start  TEXT NOT NULL,
    window_end    TEXT NOT NULL,
    generated_at  TEXT NOT NULL,
    raw_rows      INTEGER NOT NULL,
    with_activity INTEGER NOT NULL,
    before_window INTEGER NOT NULL,
    in_window     INTEGER NOT NULL,
    after_window  INTEGER NOT NULL,
    excluded      INTEGER NOT NULL,
    ineligible    INTEGER NOT NULL,
    eligible      INTEGER NOT NULL,
    matched       INTEGER NOT NULL,
    stale         INTEGER NOT NULL,
    absent        INTEGER NOT NULL
);

CREATE INDEX idx_snapshots_customer ON snapshots(customer, created_at);

CREATE TABLE discrepancies (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    snapshot_id       INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
    login             TEXT NOT NULL,
    disposition       TEXT NOT NULL,
    last_activity_at  TEXT,
    nearest_telemetry TEXT,
    latest_telemetry  TEXT,
    raw_surface       TEXT,
    report_generated_at TEXT,
    UNIQUE(snapshot_id, login)
);

CREATE TABLE telemetry_logins (
    snapshot_id INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
    login       TEXT NOT NULL,
    UNIQUE(snapshot_id, login)
);
`
