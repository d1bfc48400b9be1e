// Package uploads — файловое хранилище загруженных изображений для шлюза.
// Хранилище отвечает за:
//   - декодирование и атомарную запись содержимого под уникальным именем;
//   - выдачу URI, по которому файл доступен через статическую раздачу /uploads/;
//   - персистентный индекс загрузок (bbolt), доступный через List().
//
// Имена файлов генерируются через uuid: клиентское имя используется только для
// сохранения расширения, поэтому коллизии и path traversal исключены.
package uploads

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"telegram-gateway/internal/infra/storage"
)

const (
	uploadsBucketName             = "uploads"
	dbOpenTimeout                 = time.Second
	dbFileMode        os.FileMode = 0o600
)

var uploadsBucketBytes = []byte(uploadsBucketName)

// Record описывает одну сохранённую загрузку в индексе.
type Record struct {
	Name       string    `json:"name"`     // уникальное имя файла на диске
	Original   string    `json:"original"` // имя, присланное клиентом (может быть пустым)
	URI        string    `json:"uri"`      // относительный URI для статической раздачи
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Store инкапсулирует каталог загрузок и bbolt-индекс.
type Store struct {
	dir   string
	db    *bbolt.DB
	clock func() time.Time
}

// NewStore открывает хранилище: создаёт каталог загрузок и файл индекса.
// Бакет индекса создаётся сразу, чтобы List() не зависел от первой записи.
func NewStore(dir, indexPath string) (*Store, error) {
	path := strings.TrimSpace(dir)
	if path == "" {
		return nil, errors.New("uploads: dir is empty")
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("uploads: ensure dir %q: %w", path, err)
	}
	if err := storage.EnsureDir(indexPath); err != nil {
		return nil, fmt.Errorf("uploads: ensure index dir: %w", err)
	}

	db, err := bbolt.Open(indexPath, dbFileMode, &bbolt.Options{Timeout: dbOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("uploads: open index: %w", err)
	}
	if err = db.Update(func(tx *bbolt.Tx) error {
		_, bucketErr := tx.CreateBucketIfNotExists(uploadsBucketBytes)
		return bucketErr
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("uploads: init index bucket: %w", err)
	}

	return &Store{
		dir:   path,
		db:    db,
		clock: time.Now,
	}, nil
}

// Dir возвращает каталог, из которого файлы раздаются статически.
func (s *Store) Dir() string {
	return s.dir
}

// Close закрывает файл индекса.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveBase64 декодирует base64-содержимое и сохраняет его как обычную загрузку.
func (s *Store) SaveBase64(ctx context.Context, filename, base64Data string) (Record, error) {
	data, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		return Record{}, errors.Wrap(err, "decode base64 payload")
	}
	return s.save(ctx, filename, data)
}

// Save вычитывает содержимое r целиком и сохраняет его под уникальным именем.
func (s *Store) Save(ctx context.Context, filename string, r io.Reader) (Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Record{}, errors.Wrap(err, "read upload payload")
	}
	return s.save(ctx, filename, data)
}

// save — общий путь записи: уникальное имя, атомарная запись, обновление индекса.
func (s *Store) save(ctx context.Context, filename string, data []byte) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	name := uniqueName(filename)
	if err := storage.AtomicWriteFile(filepath.Join(s.dir, name), data); err != nil {
		return Record{}, fmt.Errorf("write upload %q: %w", name, err)
	}

	rec := Record{
		Name:       name,
		Original:   filepath.Base(strings.TrimSpace(filename)),
		URI:        "uploads/" + name,
		Size:       int64(len(data)),
		UploadedAt: s.clock().UTC(),
	}
	if rec.Original == "." {
		rec.Original = ""
	}

	if err := s.index(rec); err != nil {
		// Файл уже на диске; без индексной записи он останется сиротой, поэтому
		// ошибку индекса считаем ошибкой всей операции.
		_ = os.Remove(filepath.Join(s.dir, name))
		return Record{}, err
	}
	return rec, nil
}

// index добавляет запись в bbolt-бакет под ключом имени файла.
func (s *Store) index(rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("uploads: marshal record: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket, bucketErr := tx.CreateBucketIfNotExists(uploadsBucketBytes)
		if bucketErr != nil {
			return bucketErr
		}
		return bucket.Put([]byte(rec.Name), payload)
	})
	if err != nil {
		return fmt.Errorf("uploads: persist record: %w", err)
	}
	return nil
}

// List возвращает все записи индекса в порядке ключей бакета.
func (s *Store) List() ([]Record, error) {
	var result []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(uploadsBucketBytes)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, v []byte) error {
			var rec Record
			if unmarshalErr := json.Unmarshal(v, &rec); unmarshalErr != nil {
				return fmt.Errorf("decode record: %w", unmarshalErr)
			}
			result = append(result, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("uploads: list records: %w", err)
	}
	return result, nil
}

// uniqueName строит имя вида "<uuid><ext>", перенося из клиентского имени только
// расширение. Base отсекает любые компоненты пути из недоверенного ввода.
func uniqueName(filename string) string {
	ext := filepath.Ext(filepath.Base(strings.TrimSpace(filename)))
	return uuid.New().String() + ext
}
