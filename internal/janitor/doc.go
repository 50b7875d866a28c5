// Package janitor реализует уборку журналов по сроку хранения.
//
// Janitor по cron-расписанию удаляет события задач, завершённых
// раньше границы хранения. Снимки самих задач не трогаются:
// история переходов остаётся доступной для аудита.
package janitor
