package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	accounts "github.com/versehub/go-accounts"
)

// FileExt is the suffix of every translation data file.
const FileExt = ".SQLite3"

// DefaultDir is where translation files live unless configured otherwise.
const DefaultDir = "db/bibles"

// ErrTranslationNotFound is returned when no data file matches a translation.
var ErrTranslationNotFound = goerrors.New("translation not found", goerrors.CategoryNotFound).
	WithTextCode("TRANSLATION_NOT_FOUND").
	WithCode(goerrors.CodeNotFound)

// Translation is one data file and its declared language.
type Translation struct {
	Name     string  `json:"name"`
	Language *string `json:"language"`
}

// Verse is a sanitized verse with its human readable reference.
type Verse struct {
	Translation string `json:"Translation"`
	Reference   string `json:"Reference"`
	Verse       string `json:"Verse"`
}

// User is a row of the optional users table of a data file.
type User struct {
	ID   int64  `bun:"id" json:"id"`
	Name string `bun:"name" json:"name"`
}

// Store reads reference-work content.
type Store interface {
	Translations(ctx context.Context) ([]Translation, error)
	Verses(ctx context.Context, translation string) ([]Verse, error)
	Users(ctx context.Context) (map[string][]User, error)
}

// FileStore serves content from a directory of interchangeable SQLite
// files, one per translation. Files are opened read-only per call.
type FileStore struct {
	dir    string
	logger accounts.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a FileStore reading from dir.
func NewFileStore(dir string, logger accounts.Logger) *FileStore {
	if dir == "" {
		dir = DefaultDir
	}
	if logger == nil {
		logger = accounts.NewSlogLogger(nil)
	}
	return &FileStore{dir: dir, logger: logger}
}

func (s *FileStore) open(path string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+filepath.ToSlash(path)+"?mode=ro")
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// files lists data files sorted by name. A missing directory yields none.
func (s *FileStore) files() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list translation files")
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) Translations(ctx context.Context) ([]Translation, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}

	out := make([]Translation, 0, len(files))
	for _, f := range files {
		t := Translation{Name: strings.TrimSuffix(f, FileExt)}
		lang, err := s.language(ctx, filepath.Join(s.dir, f))
		if err != nil {
			s.logger.Warn("translation %s: language lookup failed: %v", t.Name, err)
		} else if lang != "" {
			t.Language = &lang
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *FileStore) language(ctx context.Context, path string) (string, error) {
	db, err := s.open(path)
	if err != nil {
		return "", err
	}
	defer db.Close()

	var lang sql.NullString
	err = db.NewRaw("SELECT value FROM info WHERE name = ? LIMIT 1", "language").Scan(ctx, &lang)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return lang.String, nil
}

// validName rejects names that could escape the data directory.
func validName(translation string) bool {
	if translation == "" || translation == "." || translation == ".." {
		return false
	}
	return !strings.ContainsAny(translation, `/\`) && !strings.Contains(translation, "..")
}

type verseRow struct {
	LongName string `bun:"long_name"`
	Chapter  int    `bun:"chapter"`
	Verse    int    `bun:"verse"`
	Text     string `bun:"text"`
}

func (s *FileStore) Verses(ctx context.Context, translation string) ([]Verse, error) {
	if !validName(translation) {
		return nil, ErrTranslationNotFound
	}

	path := filepath.Join(s.dir, translation+FileExt)
	if _, err := os.Stat(path); err != nil {
		return nil, ErrTranslationNotFound
	}

	db, err := s.open(path)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open translation")
	}
	defer db.Close()

	var rows []verseRow
	err = db.NewRaw(`SELECT books.long_name, verses.chapter, verses.verse, verses.text
FROM verses
JOIN books ON verses.book_number = books.book_number
ORDER BY verses.book_number, verses.chapter, verses.verse`).Scan(ctx, &rows)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read verses").
			WithMetadata(map[string]any{"translation": translation})
	}

	out := make([]Verse, 0, len(rows))
	for _, r := range rows {
		out = append(out, Verse{
			Translation: translation,
			Reference:   fmt.Sprintf("%s %d:%d", r.LongName, r.Chapter, r.Verse),
			Verse:       Sanitize(r.Text),
		})
	}
	return out, nil
}

func (s *FileStore) Users(ctx context.Context) (map[string][]User, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}

	out := make(map[string][]User, len(files))
	for _, f := range files {
		users, err := s.users(ctx, filepath.Join(s.dir, f))
		if err != nil {
			s.logger.Debug("data file %s has no readable users table: %v", f, err)
			users = []User{}
		}
		out[f] = users
	}
	return out, nil
}

func (s *FileStore) users(ctx context.Context, path string) ([]User, error) {
	db, err := s.open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	users := []User{}
	if err := db.NewRaw("SELECT id, name FROM users").Scan(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}
