package profile

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/kalambet/learnbot/internal/storage"
)

// ProfileStore defines the storage operations profiles need.
// Implemented by storage.Store.
type ProfileStore interface {
	SetProfileKeys(scope string, kv map[string]string) error
	ReplaceProfileKeys(scope string, kv map[string]string) error
	GetProfileKey(scope, key string) (string, error)
	GetAllProfileKeys(scope string) (map[string]string, error)
}

// Scope names.
const SettingsScope = "settings"

// BotScope is the logical database of a bot's learned material.
func BotScope(bot string) string { return "bot/" + bot }

// UserScope is the logical database of one user's progress against one bot.
func UserScope(user, bot string) string { return "user/" + user + "/" + bot }

// DB is one logical key/value database inside a ProfileStore.
type DB struct {
	store ProfileStore
	scope string
}

// Open returns the logical database named scope.
func Open(store ProfileStore, scope string) *DB {
	return &DB{store: store, scope: scope}
}

func (d *DB) load(key string) (string, bool, error) {
	v, err := d.store.GetProfileKey(d.scope, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading %s/%s: %w", d.scope, key, err)
	}
	return v, true, nil
}

// LoadString returns the value of key, or def when it is not set.
func (d *DB) LoadString(key, def string) (string, error) {
	v, ok, err := d.load(key)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

// LoadInt returns the integer value of key, or def when it is not set.
func (d *DB) LoadInt(key string, def int) (int, error) {
	v, ok, err := d.load(key)
	if err != nil || !ok {
		return def, err
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("parsing %s/%s: %w", d.scope, key, err)
	}
	return i, nil
}

// LoadCollection returns the members stored under key, or def when it is not set.
func (d *DB) LoadCollection(key string, def []string) ([]string, error) {
	v, ok, err := d.load(key)
	if err != nil || !ok {
		return def, err
	}
	return DecodeCollection(v), nil
}

// LoadAll returns every key of the scope.
func (d *DB) LoadAll() (Keys, error) {
	kv, err := d.store.GetAllProfileKeys(d.scope)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", d.scope, err)
	}
	return Keys(kv), nil
}

func (d *DB) SaveString(key, value string) error {
	b := d.Batch()
	b.SaveString(key, value)
	return b.Commit()
}

func (d *DB) SaveInt(key string, value int) error {
	b := d.Batch()
	b.SaveInt(key, value)
	return b.Commit()
}

func (d *DB) SaveCollection(key string, items []string) error {
	b := d.Batch()
	b.SaveCollection(key, items)
	return b.Commit()
}

// Batch collects writes to one scope and applies them atomically.
type Batch struct {
	db *DB
	kv map[string]string
}

func (d *DB) Batch() *Batch {
	return &Batch{db: d, kv: make(map[string]string)}
}

func (b *Batch) SaveString(key, value string) { b.kv[key] = value }

func (b *Batch) SaveInt(key string, value int) { b.kv[key] = strconv.Itoa(value) }

func (b *Batch) SaveCollection(key string, items []string) { b.kv[key] = EncodeCollection(items) }

// Commit writes all pending keys in one transaction.
func (b *Batch) Commit() error {
	if err := b.db.store.SetProfileKeys(b.db.scope, b.kv); err != nil {
		return fmt.Errorf("saving %s: %w", b.db.scope, err)
	}
	return nil
}

// Keys is a loaded snapshot of one scope.
type Keys map[string]string

func (k Keys) String(key, def string) string {
	if v, ok := k[key]; ok {
		return v
	}
	return def
}

func (k Keys) Collection(key string) []string {
	return DecodeCollection(k[key])
}
