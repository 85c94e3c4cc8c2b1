package proxy

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// AssetMaxAge срок кэширования статики и медиа.
const AssetMaxAge = 7 * 24 * time.Hour

// Files отдаёт файлы из root, обрезая prefix. Каталоги и отсутствующие
// файлы дают 404, запрос в API не уходит.
func Files(prefix, root string, now func() time.Time) http.Handler {
	if now == nil {
		now = time.Now
	}
	maxAge := "max-age=" + strconv.Itoa(int(AssetMaxAge.Seconds()))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		rel := strings.TrimPrefix(r.URL.Path, prefix)
		name := path.Clean("/" + rel)
		if name == "/" || containsDotDot(rel) {
			http.NotFound(w, r)
			return
		}

		f, err := os.Open(filepath.Join(root, filepath.FromSlash(name)))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Cache-Control", maxAge)
		w.Header().Set("Expires", now().Add(AssetMaxAge).UTC().Format(http.TimeFormat))
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}

func containsDotDot(p string) bool {
	for _, part := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}
