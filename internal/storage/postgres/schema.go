package postgres

var schema = []string{
	`CREATE TABLE IF NOT EXISTS "user" (
	id BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	about TEXT NOT NULL DEFAULT '',
	karma INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS story (
	id BIGSERIAL PRIMARY KEY,
	hn_id BIGINT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	url TEXT,
	text TEXT,
	dead BOOLEAN NOT NULL DEFAULT FALSE,
	score INTEGER NOT NULL DEFAULT 0,
	descendants INTEGER NOT NULL DEFAULT 0,
	user_id BIGINT REFERENCES "user"(id),
	kind TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ
)`,
	`CREATE TABLE IF NOT EXISTS comment (
	id BIGSERIAL PRIMARY KEY,
	hn_id BIGINT NOT NULL UNIQUE,
	text TEXT,
	parent_id BIGINT REFERENCES comment(id),
	story_id BIGINT NOT NULL REFERENCES story(id),
	user_id BIGINT REFERENCES "user"(id),
	"order" INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ
)`,
	`CREATE INDEX IF NOT EXISTS comment_story_id_idx ON comment (story_id)`,
	`CREATE INDEX IF NOT EXISTS comment_parent_id_idx ON comment (parent_id)`,
	`CREATE TABLE IF NOT EXISTS fetch_schedule (
	id BIGSERIAL PRIMARY KEY,
	category TEXT NOT NULL,
	total_items INTEGER,
	created_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	abandoned BOOLEAN NOT NULL DEFAULT FALSE
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS fetch_schedule_unfinished_idx ON fetch_schedule (category) WHERE finished_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS fetch_schedule_category_created_idx ON fetch_schedule (category, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS top_story (
	category TEXT NOT NULL,
	hn_id BIGINT NOT NULL,
	rank INTEGER NOT NULL,
	PRIMARY KEY (category, rank)
)`,
}
