// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go      — Handler с DI (store, dispatcher, gateway, logger)
//   - routes.go       — регистрация маршрутов
//   - middleware.go   — middleware (recovery, logging, auth)
//   - response.go     — унифицированные JSON-ответы и обработка ошибок
//   - dto.go          — Data Transfer Objects (request/response)
//   - task_handler.go — обработчики /tasks, команды, SSE-поток, stats
//
// Все маршруты, кроме /healthz, требуют bearer-токен: identity-сервис
// проверяет его одним синхронным вызовом. Чтения скоупятся владельцем
// (чужая задача — NOT_FOUND), команды на чужую задачу — FORBIDDEN.
package api
