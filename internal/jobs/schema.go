package jobs

const schema = `
CREATE TABLE IF NOT EXISTS build_jobs (
    id TEXT PRIMARY KEY,
    template_ref TEXT NOT NULL,
    target TEXT NOT NULL,
    status TEXT NOT NULL,
    overrides_json TEXT,
    error_message TEXT,
    last_log_line TEXT,
    result_ref TEXT,
    web_archive_ref TEXT,
    web_entry_ref TEXT,
    android_package_ref TEXT,
    cover_ref TEXT,
    screenshot_refs_json TEXT,
    video_ref TEXT,
    timings_json TEXT,
    started_at TEXT,
    finished_at TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_build_jobs_status ON build_jobs(status);
CREATE INDEX IF NOT EXISTS idx_build_jobs_template ON build_jobs(template_ref);
`
