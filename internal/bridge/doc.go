// Package bridge — мост к изолированному воркер-процессу автоматизации.
//
// Одна Session — один дочерний процесс. Оркестратор отправляет дескриптор
// задачи одной JSON-строкой в stdin при запуске, после чего может слать
// командные строки (pause/resume/take_control/stop). Воркер пишет в stdout
// поток line-delimited JSON-событий и ровно один финальный результат.
//
// Граница процесса изолирует падения: выход без финального результата
// обнаруживается по завершению процесса (WORKER_CRASHED), а не по
// доверию к отчёту воркера. Жёсткий wall-clock таймаут сессии завершает
// процесс с результатом SESSION_TIMEOUT.
package bridge
