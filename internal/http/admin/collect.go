package admin

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CollectStatic копирует статику админки в dest, сохраняя структуру каталогов.
// Существующие файлы перезаписываются. Возвращает число скопированных файлов.
func CollectStatic(dest string) (int, error) {
	const op = "admin.CollectStatic"
	assets := Assets()
	copied := 0

	err := fs.WalkDir(assets, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(dest, filepath.FromSlash(path))
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if err := copyFile(assets, path, target); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("%s: %w", op, err)
	}
	return copied, nil
}

func copyFile(src fs.FS, path, target string) error {
	in, err := src.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
