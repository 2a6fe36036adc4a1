package store

// schemaVersion is written to the single-row marker table at creation time.
const schemaVersion = "1"

// schema is the mirror's logical layout, table-per-entity. Natural keys are
// the remote ids; work_seq is the insertion-order index, a surrogate
// autoincrement decoupled from work ids because the catalog is delivered
// newest-first and work ids are not monotonic in discovery order.
const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS creators (
    creator_id  INTEGER PRIMARY KEY,
    name        TEXT,
    account     TEXT,
    is_followed INTEGER,
    insert_date INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS creator_details (
    creator_id             INTEGER PRIMARY KEY REFERENCES creators(creator_id),
    total_illusts          INTEGER,
    total_manga            INTEGER,
    total_novels           INTEGER,
    total_public_bookmarks INTEGER,
    total_follow_users     INTEGER,
    avatar_url             TEXT,
    background_url         TEXT,
    comment                TEXT
);

CREATE TABLE IF NOT EXISTS works (
    work_id        INTEGER PRIMARY KEY,
    creator_id     INTEGER NOT NULL REFERENCES creators(creator_id),
    work_type      TEXT,
    title          TEXT,
    page_count     INTEGER,
    total_views    INTEGER,
    total_bookmarks INTEGER,
    is_bookmarked  INTEGER,
    is_downloaded  INTEGER NOT NULL DEFAULT 0,
    bookmark_rate  REAL,
    create_date    INTEGER,
    insert_date    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_works_creator ON works(creator_id);

CREATE TABLE IF NOT EXISTS work_seq (
    seq_id  INTEGER PRIMARY KEY AUTOINCREMENT,
    work_id INTEGER NOT NULL UNIQUE REFERENCES works(work_id)
);

CREATE TABLE IF NOT EXISTS captions (
    work_id      INTEGER PRIMARY KEY REFERENCES works(work_id),
    caption_text TEXT
);

CREATE TABLE IF NOT EXISTS work_image_urls (
    work_id       INTEGER NOT NULL REFERENCES works(work_id),
    page          INTEGER NOT NULL,
    square_medium TEXT,
    medium        TEXT,
    large         TEXT,
    original      TEXT,
    PRIMARY KEY (work_id, page)
);

CREATE TABLE IF NOT EXISTS ugoira_frames (
    work_id    INTEGER PRIMARY KEY REFERENCES works(work_id),
    delay_text TEXT,
    zip_url    TEXT
);

CREATE TABLE IF NOT EXISTS tags (
    tag_id   INTEGER PRIMARY KEY AUTOINCREMENT,
    tag_text TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS tag_translations (
    tag_id           INTEGER NOT NULL REFERENCES tags(tag_id),
    language         TEXT NOT NULL,
    translation_text TEXT NOT NULL,
    PRIMARY KEY (tag_id, language)
);

CREATE TABLE IF NOT EXISTS custom_tags (
    tag_id   INTEGER PRIMARY KEY AUTOINCREMENT,
    tag_text TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS work_tags (
    row_id  INTEGER PRIMARY KEY AUTOINCREMENT,
    work_id INTEGER NOT NULL REFERENCES works(work_id),
    tag_id  INTEGER NOT NULL REFERENCES tags(tag_id),
    UNIQUE (work_id, tag_id)
);
CREATE INDEX IF NOT EXISTS idx_work_tags_tag ON work_tags(tag_id);

CREATE TABLE IF NOT EXISTS work_custom_tags (
    row_id  INTEGER PRIMARY KEY AUTOINCREMENT,
    work_id INTEGER NOT NULL REFERENCES works(work_id),
    tag_id  INTEGER NOT NULL REFERENCES custom_tags(tag_id),
    UNIQUE (work_id, tag_id)
);
`
