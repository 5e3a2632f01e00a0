package profile

import "fmt"

// Kind distinguishes the two exportable profile kinds.
type Kind string

const (
	KindUser Kind = "user"
	KindBot  Kind = "bot"
)

// Export is a portable copy of one profile scope.
type Export struct {
	Kind Kind              `json:"kind"`
	Name string            `json:"name"`
	Bot  string            `json:"bot,omitempty"` // user profiles only
	Keys map[string]string `json:"keys"`
}

func (e Export) scope() (string, error) {
	if err := ValidateName(e.Name); err != nil {
		return "", err
	}
	switch e.Kind {
	case KindBot:
		return BotScope(e.Name), nil
	case KindUser:
		if err := ValidateName(e.Bot); err != nil {
			return "", fmt.Errorf("user profile bot: %w", err)
		}
		return UserScope(e.Name, e.Bot), nil
	default:
		return "", fmt.Errorf("%w: unknown profile kind %q", ErrInvalidName, e.Kind)
	}
}

// Export copies every key of a bot profile, or of a user's profile against bot.
func (m *Manager) Export(kind Kind, name, bot string) (Export, error) {
	e := Export{Kind: kind, Name: name}
	if kind == KindUser {
		e.Bot = bot
	}
	scope, err := e.scope()
	if err != nil {
		return Export{}, err
	}
	keys, err := Open(m.store, scope).LoadAll()
	if err != nil {
		return Export{}, err
	}
	e.Keys = keys
	return e, nil
}

// Import replaces the profile's scope with the exported keys and
// registers its names. Keys the export lacks do not survive.
func (m *Manager) Import(e Export) error {
	scope, err := e.scope()
	if err != nil {
		return err
	}
	if err := m.store.ReplaceProfileKeys(scope, e.Keys); err != nil {
		return fmt.Errorf("importing %s: %w", scope, err)
	}
	if err := m.Register(e.Kind, e.Name); err != nil {
		return err
	}
	if e.Kind == KindUser {
		return m.Register(KindBot, e.Bot)
	}
	return nil
}
