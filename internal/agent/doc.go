// Package agent — движок заполнения форм внутри воркер-процесса.
//
// Структура:
//   - page.go    — абстракция браузерного контекста (Page, Element)
//   - webpage.go — goquery-реализация для статических порталов
//   - resolve.go — поиск полей: визуальный якорь → fallback-селекторы
//     профиля → широкий проход с нечётким совпадением
//   - evasion.go — человеческий темп ввода, локаль es-MX, подавление
//     признаков автоматизации, ожидание стабильности DOM
//   - upload.go  — загрузка файла тремя стратегиями с опросом
//     индикатора завершения
//   - success.go — детекция итога: маркеры успеха/ошибки, извлечение
//     folio, исход AMBIGUOUS при отсутствии обоих
//   - runner.go  — цикл прогона с событиями, гейтом паузы и лимитом шагов
package agent
