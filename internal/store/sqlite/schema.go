package sqlite

// Schema defines the SQL statements to create the database tables.
const Schema = `
-- Posted financial records
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    description TEXT NOT NULL,
    amount TEXT NOT NULL,              -- decimal string, 2dp
    date TEXT NOT NULL,                -- YYYY-MM-DD, first of month
    category TEXT NOT NULL,
    type TEXT NOT NULL,
    branch TEXT NOT NULL,
    brand TEXT NOT NULL DEFAULT '',
    scenario TEXT NOT NULL DEFAULT '',
    tag01 TEXT NOT NULL DEFAULT '',
    tag02 TEXT NOT NULL DEFAULT '',
    tag03 TEXT NOT NULL DEFAULT '',
    recurring TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_status
    ON transactions(status);

CREATE INDEX IF NOT EXISTS idx_transactions_branch_brand
    ON transactions(branch, brand);

-- Change requests (audit trail; rows are never deleted)
CREATE TABLE IF NOT EXISTS manual_changes (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    type TEXT NOT NULL,
    original_snapshot TEXT NOT NULL,   -- JSON
    proposal TEXT NOT NULL,            -- JSON envelope
    description TEXT NOT NULL DEFAULT '',
    justification TEXT NOT NULL,
    status TEXT NOT NULL,
    requested_by TEXT NOT NULL,
    requested_by_name TEXT NOT NULL DEFAULT '',
    requested_at TEXT NOT NULL,        -- RFC 3339
    approved_by TEXT,
    approved_at TEXT                   -- RFC 3339
);

CREATE INDEX IF NOT EXISTS idx_manual_changes_transaction
    ON manual_changes(transaction_id, status);

-- At most one open change request per transaction
CREATE UNIQUE INDEX IF NOT EXISTS idx_manual_changes_open
    ON manual_changes(transaction_id) WHERE status = 'Pendente';
`
