// Package engine связывает конфигурацию с координатором цепочки.
//
// Включает:
//   - definition.go — FunctionDef и валидация определений функций
//   - loader.go     — сборка pipeline.Registry через каталог типов
//   - session.go    — Session: создание Master для каждого документа
//   - template.go   — рендеринг Go templates для страниц ({{ .Fields.x }})
//
// Engine не знает конкретных функций печати: они приходят через
// интерфейс Catalog (реализация — functions.Catalog).
package engine
