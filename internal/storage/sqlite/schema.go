package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS "user" (
    id         INTEGER PRIMARY KEY,
    username   TEXT NOT NULL UNIQUE,
    about      TEXT NOT NULL DEFAULT '',
    karma      INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS story (
    id          INTEGER PRIMARY KEY,
    hn_id       INTEGER NOT NULL UNIQUE,
    title       TEXT NOT NULL DEFAULT '',
    url         TEXT,
    text        TEXT,
    dead        BOOLEAN NOT NULL DEFAULT 0,
    score       INTEGER NOT NULL DEFAULT 0,
    descendants INTEGER NOT NULL DEFAULT 0,
    user_id     INTEGER REFERENCES "user"(id),
    kind        TEXT NOT NULL,
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL,
    deleted_at  DATETIME
);

CREATE TABLE IF NOT EXISTS comment (
    id         INTEGER PRIMARY KEY,
    hn_id      INTEGER NOT NULL UNIQUE,
    text       TEXT,
    parent_id  INTEGER REFERENCES comment(id),
    story_id   INTEGER NOT NULL REFERENCES story(id),
    user_id    INTEGER REFERENCES "user"(id),
    "order"    INTEGER NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    deleted_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_comment_story ON comment(story_id);
CREATE INDEX IF NOT EXISTS idx_comment_parent ON comment(parent_id);

CREATE TABLE IF NOT EXISTS fetch_schedule (
    id          INTEGER PRIMARY KEY,
    category    TEXT NOT NULL,
    total_items INTEGER,
    created_at  DATETIME NOT NULL,
    finished_at DATETIME,
    abandoned   BOOLEAN NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_fetch_schedule_unfinished ON fetch_schedule(category) WHERE finished_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_fetch_schedule_created ON fetch_schedule(category, created_at);

CREATE TABLE IF NOT EXISTS top_story (
    category TEXT NOT NULL,
    hn_id    INTEGER NOT NULL,
    rank     INTEGER NOT NULL,
    PRIMARY KEY (category, rank)
);
`
