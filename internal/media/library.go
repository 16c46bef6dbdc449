package media

import (
	"fmt"
	"strings"

	"github.com/rglservice/mediation-strapi-import-export/internal/store"
)

// Library resolves media descriptors to file records, importing new
// metadata rows when no existing file matches. Byte transfer and
// caching are out of scope; only the library index is maintained here.
type Library struct {
	store *store.Store
}

func NewLibrary(s *store.Store) *Library {
	return &Library{store: s}
}

// FindOrImport resolves a descriptor to a file record. Descriptors may
// be a bare numeric id of an existing file, a URL string, or an object
// with url/name/hash metadata. The allowedTypes filter of the owning
// attribute constrains the file kind.
func (l *Library) FindOrImport(descriptor any, userID uint, allowedTypes []string) (*store.File, error) {
	switch value := descriptor.(type) {
	case nil:
		return nil, fmt.Errorf("empty media descriptor")
	case float64, int, int64, uint:
		return l.findByID(value, allowedTypes)
	case string:
		return l.findOrCreate(store.File{URL: value, Name: nameFromURL(value)}, userID, allowedTypes)
	case map[string]any:
		return l.findOrCreate(fileFromObject(value), userID, allowedTypes)
	default:
		return nil, fmt.Errorf("unsupported media descriptor of type %T", descriptor)
	}
}

func (l *Library) findByID(id any, allowedTypes []string) (*store.File, error) {
	var file store.File
	if err := l.store.DB.First(&file, fmt.Sprint(id)).Error; err != nil {
		return nil, fmt.Errorf("media file %v not found", id)
	}
	if err := checkKind(file.Kind, allowedTypes); err != nil {
		return nil, err
	}
	return &file, nil
}

func (l *Library) findOrCreate(candidate store.File, userID uint, allowedTypes []string) (*store.File, error) {
	if candidate.URL == "" && candidate.Hash == "" && candidate.Name == "" {
		return nil, fmt.Errorf("media descriptor carries no url, hash or name")
	}

	if candidate.Kind == "" {
		candidate.Kind = kindFromMime(candidate.Mime)
	}
	if err := checkKind(candidate.Kind, allowedTypes); err != nil {
		return nil, err
	}

	// Deduplicate by the strongest available key.
	var existing store.File
	for _, lookup := range []struct {
		column string
		value  string
	}{
		{"hash", candidate.Hash},
		{"url", candidate.URL},
		{"name", candidate.Name},
	} {
		if lookup.value == "" {
			continue
		}
		err := l.store.DB.Where(lookup.column+" = ?", lookup.value).First(&existing).Error
		if err == nil {
			return &existing, nil
		}
		if !store.IsNotFound(err) {
			return nil, err
		}
	}

	candidate.CreatedByID = userID
	if err := l.store.DB.Create(&candidate).Error; err != nil {
		return nil, err
	}
	return &candidate, nil
}

func fileFromObject(obj map[string]any) store.File {
	file := store.File{
		URL:     stringField(obj, "url"),
		Name:    stringField(obj, "name"),
		Hash:    stringField(obj, "hash"),
		Mime:    stringField(obj, "mime"),
		AltText: stringField(obj, "alternativeText"),
		Caption: stringField(obj, "caption"),
	}
	if file.Name == "" {
		file.Name = nameFromURL(file.URL)
	}
	if size, ok := obj["size"].(float64); ok {
		file.Size = int64(size)
	}
	return file
}

func stringField(obj map[string]any, key string) string {
	if s, ok := obj[key].(string); ok {
		return s
	}
	return ""
}

func nameFromURL(url string) string {
	if idx := strings.LastIndex(url, "/"); idx >= 0 && idx < len(url)-1 {
		return url[idx+1:]
	}
	return url
}

func kindFromMime(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "images"
	case strings.HasPrefix(mime, "video/"):
		return "videos"
	case strings.HasPrefix(mime, "audio/"):
		return "audios"
	default:
		return "files"
	}
}

func checkKind(kind string, allowedTypes []string) error {
	if len(allowedTypes) == 0 || kind == "" {
		return nil
	}
	for _, allowed := range allowedTypes {
		if allowed == kind {
			return nil
		}
	}
	return fmt.Errorf("media kind %s is not allowed here (expected one of %s)", kind, strings.Join(allowedTypes, ", "))
}
