// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (хранилища, publisher, планировщик функций)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - job_handler.go      — обработчики для /jobs
//   - function_handler.go — обработчик для /functions
//
// API принимает документы на печать, показывает jobs и их этапы,
// отменяет jobs и показывает порядок функций реестра.
package api
