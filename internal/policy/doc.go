// Package policy — политика восстановления после ошибок автоматизации.
//
// Decide — чистая функция от (вид ошибки, номер попытки,
// переопределения vendor-профиля) к решению: повторить, деградировать,
// эскалировать человеку или завершить с ошибкой. Никакого состояния и
// побочных эффектов: политика одинаково применяется воркером (внутри
// шага) и диспетчером (на границе задачи).
package policy
