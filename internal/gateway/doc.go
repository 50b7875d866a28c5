// Package gateway — publish/subscribe шлюз живых событий задач.
//
// Подписка ключуется по ID задачи с семантикой "с этого момента":
// опоздавший подписчик получает только последующие события, реплей
// истории не гарантируется. Несколько наблюдателей могут подписаться
// на одну задачу; события одной задачи доставляются каждому подписчику
// в порядке испускания.
//
// При настроенном Fanout каждое событие и каждый переход статуса
// дополнительно публикуются во внешний транспорт (AMQP).
package gateway
