package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Meta carries the store-owned fields of a typed record and any payload fields
// the record type does not declare.
type Meta struct {
	ID          string         `json:"id,omitempty" yaml:"id"`
	CreatedDate string         `json:"created_date,omitempty" yaml:"created_date,omitempty"`
	Extra       map[string]any `json:"-" yaml:"-"`
}

func (m *Meta) extension() *map[string]any { return &m.Extra }

// Extensible is implemented by pointers to records embedding Meta.
type Extensible interface {
	extension() *map[string]any
}

type Exercise struct {
	Meta `yaml:",inline"`
	Category      string `json:"category,omitempty" yaml:"category"`
	TitleEN       string `json:"title_en,omitempty" yaml:"title_en"`
	TitleES       string `json:"title_es,omitempty" yaml:"title_es"`
	DescriptionEN string `json:"description_en,omitempty" yaml:"description_en"`
	DescriptionES string `json:"description_es,omitempty" yaml:"description_es"`
	ContentEN     string `json:"content_en,omitempty" yaml:"content_en"`
	ContentES     string `json:"content_es,omitempty" yaml:"content_es"`
	Duration      int    `json:"duration,omitempty" yaml:"duration"`
	AudioURL      string `json:"audio_url,omitempty" yaml:"audio_url,omitempty"`
}

type Expert struct {
	Meta `yaml:",inline"`
	Name           string  `json:"name,omitempty" yaml:"name"`
	Email          string  `json:"email,omitempty" yaml:"email,omitempty"`
	Specialization string  `json:"specialization,omitempty" yaml:"specialization"`
	Title          string  `json:"title,omitempty" yaml:"title"`
	Bio            string  `json:"bio,omitempty" yaml:"bio"`
	Availability   string  `json:"availability,omitempty" yaml:"availability"`
	PhotoURL       string  `json:"photo_url,omitempty" yaml:"photo_url"`
	Price          float64 `json:"price,omitempty" yaml:"price"`
	Currency       string  `json:"currency,omitempty" yaml:"currency"`
	Degree         string  `json:"degree,omitempty" yaml:"degree,omitempty"`
	Credentials    string  `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	CVURL          string  `json:"cv_url,omitempty" yaml:"cv_url,omitempty"`
	AverageRating  float64 `json:"average_rating,omitempty" yaml:"average_rating,omitempty"`
	TotalRatings   int     `json:"total_ratings,omitempty" yaml:"total_ratings,omitempty"`
}

type Consultation struct {
	Meta `yaml:",inline"`
	ExpertID       string `json:"expert_id,omitempty"`
	ExpertName     string `json:"expert_name,omitempty"`
	Specialization string `json:"specialization,omitempty"`
	Date           string `json:"date,omitempty"`
	Time           string `json:"time,omitempty"`
	Notes          string `json:"notes,omitempty"`
	MeetingLink    string `json:"meeting_link,omitempty"`
	Status         string `json:"status,omitempty"`
	Rating         int    `json:"rating,omitempty"`
	Review         string `json:"review,omitempty"`
}

type Playlist struct {
	Meta `yaml:",inline"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	SpotifyURL  string `json:"spotify_url,omitempty"`
	CoverImage  string `json:"cover_image,omitempty"`
	Duration    string `json:"duration,omitempty"`
}

// User is a server-side account. PasswordHash is empty for identity-provider
// accounts.
type User struct {
	Meta `yaml:",inline"`
	Email        string   `json:"email,omitempty"`
	PasswordHash string   `json:"password_hash,omitempty"`
	FullName     string   `json:"full_name,omitempty"`
	Role         UserRole `json:"role,omitempty"`
	Nickname     string   `json:"nickname,omitempty"`
	Bio          string   `json:"bio,omitempty"`
	PhotoURL     string   `json:"photo_url,omitempty"`
	Provider     string   `json:"provider,omitempty"`
}

// Public returns a copy safe to send to clients.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

// Decode converts a Document into a typed record. Fields the record does not
// declare end up in Extra.
func Decode[T any, PT interface {
	*T
	Extensible
}](doc Document) (T, error) {
	var out T
	raw, err := json.Marshal(doc)
	if err != nil {
		return out, fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %T: %w", out, err)
	}
	known := jsonFields(reflect.TypeOf(out))
	extra := make(map[string]any)
	for k, v := range doc {
		if !known[k] {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		*PT(&out).extension() = extra
	}
	return out, nil
}

// Encode converts a typed record back to a Document, re-attaching Extra fields.
// Declared fields win over Extra entries with the same name.
func Encode[T any, PT interface {
	*T
	Extensible
}](v T) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	doc := Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for k, val := range *PT(&v).extension() {
		if _, ok := doc[k]; !ok {
			doc[k] = val
		}
	}
	return doc, nil
}

var fieldCache sync.Map // reflect.Type -> map[string]bool

func jsonFields(t reflect.Type) map[string]bool {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.(map[string]bool)
	}
	fields := make(map[string]bool)
	collectFields(t, fields)
	fieldCache.Store(t, fields)
	return fields
}

func collectFields(t reflect.Type, into map[string]bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			continue
		}
		if f.Anonymous && name == "" && f.Type.Kind() == reflect.Struct {
			collectFields(f.Type, into)
			continue
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		into[name] = true
	}
}

// Typed is a Collection viewed through a record type.
type Typed[T any, PT interface {
	*T
	Extensible
}] struct {
	c *Collection
}

func NewTyped[T any, PT interface {
	*T
	Extensible
}](c *Collection) *Typed[T, PT] {
	return &Typed[T, PT]{c: c}
}

func (t *Typed[T, PT]) List(ctx context.Context, orderBy string) ([]T, error) {
	docs, err := t.c.List(ctx, orderBy)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		rec, err := Decode[T, PT](d)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", t.c.name, d.ID(), err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get returns nil when the id is unknown.
func (t *Typed[T, PT]) Get(ctx context.Context, id string) (*T, error) {
	doc, err := t.c.Get(ctx, id)
	if err != nil || doc == nil {
		return nil, err
	}
	rec, err := Decode[T, PT](doc)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (t *Typed[T, PT]) Create(ctx context.Context, v T) (T, error) {
	doc, err := Encode[T, PT](v)
	if err != nil {
		var zero T
		return zero, err
	}
	created, err := t.c.Create(ctx, doc)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T, PT](created)
}

// Update applies patch and returns the updated record, or nil when the id is
// unknown.
func (t *Typed[T, PT]) Update(ctx context.Context, id string, patch Document) (*T, error) {
	doc, err := t.c.Update(ctx, id, patch)
	if err != nil || doc == nil {
		return nil, err
	}
	rec, err := Decode[T, PT](doc)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
