package sessiontype

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("session type not found")

// SessionType is immutable reference data describing a bookable session.
// Amounts are in the smallest currency unit.
type SessionType struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	DurationMinutes int    `yaml:"duration_minutes" json:"duration_minutes"`
	Price           int64  `yaml:"price" json:"price"`
	Credits         int    `yaml:"credits" json:"credits,omitempty"`
	NoShowFee       int64  `yaml:"no_show_fee" json:"no_show_fee,omitempty"`
}

func (s SessionType) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// ChargesNoShow reports whether a participant no-show incurs a fee.
func (s SessionType) ChargesNoShow() bool {
	return s.NoShowFee > 0
}

type catalogFile struct {
	SessionTypes []SessionType `yaml:"session_types"`
}

// Catalog is a read-only lookup of session types by id.
type Catalog struct {
	byID map[string]SessionType
}

func NewCatalog(types ...SessionType) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]SessionType, len(types))}
	for _, t := range types {
		if t.ID == "" {
			return nil, errors.New("session type id is required")
		}
		if t.DurationMinutes <= 0 {
			return nil, fmt.Errorf("session type %s: duration_minutes must be positive", t.ID)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("session type %s: duplicate id", t.ID)
		}
		c.byID[t.ID] = t
	}
	return c, nil
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode session types: %w", err)
	}
	return NewCatalog(f.SessionTypes...)
}

// Load reads the YAML catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session types: %w", err)
	}
	return Parse(data)
}

func (c *Catalog) Get(id string) (SessionType, error) {
	t, ok := c.byID[id]
	if !ok {
		return SessionType{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

// All returns every session type ordered by id.
func (c *Catalog) All() []SessionType {
	out := make([]SessionType, 0, len(c.byID))
	for _, t := range c.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
