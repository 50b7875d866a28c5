// Package repo — PostgreSQL-хранилище задач и vendor-профилей.
//
// Ожидаемая схема:
//
//	CREATE TABLE tasks (
//	    id           uuid PRIMARY KEY,
//	    user_id      text        NOT NULL,
//	    target_url   text        NOT NULL,
//	    payload      jsonb       NOT NULL,
//	    config       jsonb       NOT NULL,
//	    profile_key  text,
//	    status       text        NOT NULL,
//	    result       jsonb,
//	    transitions  jsonb       NOT NULL DEFAULT '[]',
//	    created_at   timestamptz NOT NULL,
//	    started_at   timestamptz,
//	    completed_at timestamptz
//	);
//	CREATE INDEX tasks_user_created ON tasks (user_id, created_at DESC);
//
//	CREATE TABLE task_events (
//	    task_id    uuid  NOT NULL REFERENCES tasks (id),
//	    seq        int   NOT NULL,
//	    type       text  NOT NULL,
//	    message    text  NOT NULL,
//	    data       jsonb,
//	    created_at timestamptz NOT NULL,
//	    PRIMARY KEY (task_id, seq)
//	);
//
//	CREATE TABLE vendor_profiles (
//	    key     text PRIMARY KEY,
//	    profile jsonb NOT NULL
//	);
//
// Ошибки возвращаются сентинелами пакета store: вызывающие не
// различают PostgreSQL и in-memory бэкенды.
package repo
