// Package cli реализует инструмент командной строки Tramita.
//
// CLI — клиентская утилита для взаимодействия с Tramita API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
//
// # Client
//
// HTTP-клиент для Tramita API: задачи, события, статистика и
// SSE-поток /events/stream для watch-режима. Токен передаётся
// в заголовке Authorization.
//
//	client := cli.NewClient("http://localhost:8080", token)
//	tasks, total, err := client.ListTasks(cli.ListTasksOpts{})
//
// # Output
//
// Форматирование вывода. Два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: tramita task list --json | jq .
//
// # Commands
//
// Cobra-команды:
//   - task: list, create, show, cancel, pause, resume, take-control,
//     events, watch
//   - stats
//
// Каждая группа создаётся через фабричную функцию, принимающую
// clientFn и outputFn — замыкания для ленивого создания Client и
// Output после парсинга PersistentFlags.
package cli
