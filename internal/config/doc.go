// Package config загружает конфигурацию Printflow через koanf.
//
// Порядок источников (последний побеждает):
//  1. YAML-файл (по умолчанию printflow.yaml)
//  2. Переменные окружения PRINTFLOW_*, "__" разделяет уровни:
//     PRINTFLOW_DATABASE__URL → database.url
//  3. Значения по умолчанию для ключей, не заданных ни там, ни там
//
// Секция functions — определения функций печати (engine.FunctionDef),
// из которых Session собирает реестр. Секция schedules — расписания
// для scheduler.
package config
