// Package cli реализует инструмент командной строки Printflow.
//
// # Обзор
//
// CLI работает в двух режимах:
//   - клиент Printflow API: отправка документов, просмотр и отмена jobs;
//   - локальный run: цепочка функций выполняется в этом процессе,
//     без PostgreSQL и RabbitMQ, результат пишется в output.dir.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Printflow API. Инкапсулирует HTTP-запросы,
// разбор ответов (data, data+total, error) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	jobs, err := client.ListJobs(cli.ListJobsOpts{Status: "RUNNING"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Warn) — в stderr.
// Это позволяет использовать pipe: printflow job list --json | jq .
//
// ## Commands
//
//   - job: submit, list, show, stages, cancel
//   - run: локальный run для документа (--document, --only, --out)
//   - functions: порядок выполнения функций из конфигурации или API (--remote)
//
// Команды создаются фабричными функциями (NewJobCmd и т.д.), принимающими
// clientFn, configFn и outputFn — замыкания для ленивого создания
// зависимостей после парсинга PersistentFlags.
package cli
