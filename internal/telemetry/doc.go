// Package telemetry обеспечивает наблюдаемость оркестратора.
//
// Включает:
//   - logging.go — structured logging через slog (LOG_LEVEL, LOG_FORMAT)
//   - metrics.go — Prometheus метрики пула, очереди и задач
//
// Оба бинаря используют единый формат логирования; метрики
// экспортируются сервером на /metrics endpoint.
package telemetry
