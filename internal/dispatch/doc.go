// Package dispatch — диспетчер и пул воркер-сессий.
//
// Dispatcher принимает задачи в строгую FIFO-очередь, допускает их к
// выполнению при освобождении слота (ограниченный пул, по умолчанию 3),
// привязывает к каждой допущенной задаче ровно одну bridge.Session и
// ведёт её до финального статуса: пересылает события в Store и Gateway,
// применяет политику восстановления на границе задачи и гарантирует,
// что крах или таймаут воркера никогда не оставит задачу в RUNNING.
//
// Команды pause/resume/take_control/stop от авторизованного наблюдателя
// ретранслируются привязанному воркеру через мост.
package dispatch
