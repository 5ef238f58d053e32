package transport

import (
	"fmt"
	"os"
	"path/filepath"
)

// SpoolFile имя файла с последним отчетом в каталоге состояния
const SpoolFile = "agent.log"

// Spool хранит последний отчет на диске, чтобы его можно было восстановить
// даже при неудачной отправке
type Spool struct {
	path string
}

// NewSpool создает хранилище отчета в каталоге dir
func NewSpool(dir string) *Spool {
	return &Spool{path: filepath.Join(dir, SpoolFile)}
}

// Path возвращает путь к файлу отчета
func (s *Spool) Path() string {
	return s.path
}

// Write перезаписывает файл отчета
func (s *Spool) Write(payload string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(payload), 0o600); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Read возвращает последний сохраненный отчет
func (s *Spool) Read() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("failed to read report: %w", err)
	}
	return string(data), nil
}
