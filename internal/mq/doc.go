// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect через go-retry, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений с ack/nack
//
// Типы сообщений:
//   - job.pending  — новый job ожидает выполнения
//   - job.cancel   — команда отмены выполняющегося job
//   - job.event    — события job и его этапов для внешних подписчиков
//
// Exchanges:
//   - printflow.jobs     — direct, очередь jobs.pending
//   - printflow.control  — fanout, у каждого воркера своя эксклюзивная очередь
//   - printflow.events   — topic, ключи job.<status> и stage.<status>
//   - printflow.dlq      — dead letter queue
package mq
