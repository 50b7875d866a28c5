// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением (reconnect, graceful shutdown)
//   - topology.go   — объявление exchange, queues, bindings
//   - publisher.go  — публикация событий задач (реализация gateway.Fanout)
//
// Routing keys:
//   - task.<id>.<type> — событие воркера (thinking, action, observation...)
//   - task.<id>.status — переход статуса задачи
//
// Внешние системы подписываются на events.audit (весь поток) либо
// events.status (только переходы). Внутри процесса события доставляются
// шлюзом напрямую, брокер опционален: без AMQP_URL сервер работает
// в режиме только внутренних подписчиков.
package mq
