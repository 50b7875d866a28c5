// Package domain содержит основные типы предметной области:
// Task, TaskEvent, TaskResult, VendorProfile и машину состояний задачи.
//
// Типы не зависят от инфраструктуры (БД, AMQP, HTTP) и используются
// всеми остальными пакетами.
package domain
