package history

const schema = `
CREATE TABLE IF NOT EXISTS invocations (
    id TEXT PRIMARY KEY,
    workflow_id TEXT NOT NULL,
    work_item_id TEXT NOT NULL,
    phase TEXT NOT NULL,
    role TEXT NOT NULL,
    iteration INTEGER NOT NULL DEFAULT 0,
    outcome TEXT,
    detail TEXT,
    log_path TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_invocations_workflow ON invocations(workflow_id);
CREATE INDEX IF NOT EXISTS idx_invocations_outcome ON invocations(outcome);
`
