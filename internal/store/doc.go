// Package store — авторитетное хранилище задач и их событий.
//
// Все мутации статуса проходят через Transition — атомарный
// compare-and-set, охраняемый текущим статусом. Конкурирующий переход
// завершается ErrStaleState, и вызывающий перечитывает задачу и
// повторяет попытку один раз.
//
// Пакет определяет интерфейс Store и его in-memory реализацию MemStore.
// Durable-реализация на PostgreSQL живёт в internal/repo.
package store
