package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/shaiso/Printflow/internal/domain"
	"github.com/shaiso/Printflow/internal/pipeline"
)

// LoadDocument читает документ из JSON-файла.
// Документу без ID присваивается новый.
func LoadDocument(path string) (*domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document %s: %w", path, err)
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	return &doc, nil
}

// SaveDocument записывает документ в JSON-файл.
// Запись атомарна: сначала во временный файл, затем rename.
func SaveDocument(path string, doc *domain.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".printflow-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close document: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename document: %w", err)
	}
	return nil
}

// OutputPath возвращает путь результата для документа в каталоге dir.
func OutputPath(dir string, doc *domain.Document) string {
	return filepath.Join(dir, doc.ID.String()+".json")
}

// FileTerminal — терминальное действие: записывает итоговый документ
// в каталог dir как <id>.json.
func FileTerminal(dir string, logger *slog.Logger) pipeline.TerminalFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, doc *domain.Document, props map[string]any) error {
		if doc == nil {
			return nil
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}

		path := OutputPath(dir, doc)
		if err := SaveDocument(path, doc); err != nil {
			return err
		}

		logger.Info("document written",
			"document_id", doc.ID,
			"path", path,
			"pages", doc.PageCount(),
		)
		return nil
	}
}
