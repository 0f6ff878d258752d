package invoice

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Client is a known billing contact.
type Client struct {
	Name           string  `yaml:"name"`
	Address        string  `yaml:"address"`
	Email          string  `yaml:"email"`
	DefaultTaxRate float64 `yaml:"default_tax_rate"`
}

// CatalogItem is a known product or service. Key is matched as a substring
// of line-item descriptions.
type CatalogItem struct {
	Key         string  `yaml:"key"`
	Description string  `yaml:"description"`
	UnitPrice   float64 `yaml:"unit_price"`
}

// Lookup resolves clients and catalog items for the reconciler.
type Lookup interface {
	LookupClient(name string) (Client, bool)
	MatchCatalog(description string) (CatalogItem, bool)
}

// Snapshotter is implemented by lookups whose contents can change. The
// reconciler takes one snapshot per call so a pass never sees two versions.
type Snapshotter interface {
	Snapshot() Lookup
}

// Tables is an immutable in-memory Lookup. Catalog matching walks items in
// insertion order and the first hit wins.
type Tables struct {
	clients map[string]Client
	catalog []CatalogItem
}

// NewTables builds Tables from clients and catalog entries. Client names and
// catalog keys are normalized (trimmed, lower-cased); later duplicates of a
// client replace earlier ones, duplicate catalog keys keep the first.
func NewTables(clients []Client, catalog []CatalogItem) *Tables {
	t := &Tables{
		clients: make(map[string]Client, len(clients)),
		catalog: make([]CatalogItem, 0, len(catalog)),
	}
	for _, c := range clients {
		t.clients[normalize(c.Name)] = c
	}
	seen := make(map[string]bool, len(catalog))
	for _, item := range catalog {
		item.Key = normalize(item.Key)
		if item.Key == "" || seen[item.Key] {
			continue
		}
		seen[item.Key] = true
		t.catalog = append(t.catalog, item)
	}
	return t
}

// DefaultTables returns the built-in demo clients and catalog.
func DefaultTables() *Tables {
	return NewTables(
		[]Client{
			{Name: "John Doe", Address: "123 Elm St, Springfield, IL", Email: "john.doe@example.com", DefaultTaxRate: 0.07},
			{Name: "ACME Corporation", Address: "456 Oak Ave, Metropolis, NY", Email: "info@acmecorp.com", DefaultTaxRate: 0.09},
		},
		[]CatalogItem{
			{Key: "laptop", Description: "Laptop Computer", UnitPrice: 1200.00},
			{Key: "keyboard", Description: "Mechanical Keyboard", UnitPrice: 75.00},
			{Key: "mouse", Description: "Wireless Mouse", UnitPrice: 25.00},
			{Key: "software license", Description: "Software License (Annual)", UnitPrice: 300.00},
			{Key: "consulting services", Description: "Consulting Services (Hourly)", UnitPrice: 150.00},
			{Key: "web development", Description: "Web Development Services", UnitPrice: 100.00},
			{Key: "graphic design", Description: "Graphic Design Services", UnitPrice: 80.00},
		},
	).withAlias("acme corp", "ACME Corporation")
}

// withAlias registers an extra lookup key for an existing client. Only used
// while building tables, before they are shared.
func (t *Tables) withAlias(alias, name string) *Tables {
	if c, ok := t.clients[normalize(name)]; ok {
		t.clients[normalize(alias)] = c
	}
	return t
}

// LookupClient finds a client by trimmed, case-insensitive name.
func (t *Tables) LookupClient(name string) (Client, bool) {
	c, ok := t.clients[normalize(name)]
	return c, ok
}

// MatchCatalog returns the first catalog item whose key occurs in the
// normalized description.
func (t *Tables) MatchCatalog(description string) (CatalogItem, bool) {
	desc := normalize(description)
	if desc == "" {
		return CatalogItem{}, false
	}
	for _, item := range t.catalog {
		if strings.Contains(desc, item.Key) {
			return item, true
		}
	}
	return CatalogItem{}, false
}

// Catalog returns a copy of the catalog in match order.
func (t *Tables) Catalog() []CatalogItem {
	return append([]CatalogItem(nil), t.catalog...)
}

type tablesFile struct {
	Clients []struct {
		Client  `yaml:",inline"`
		Aliases []string `yaml:"aliases"`
	} `yaml:"clients"`
	Catalog []CatalogItem `yaml:"catalog"`
}

// LoadTables reads clients and catalog entries from a YAML file. Sequences
// keep their file order, which is the catalog match order.
//
//	clients:
//	  - name: ACME Corporation
//	    aliases: [acme corp]
//	    address: 456 Oak Ave, Metropolis, NY
//	    default_tax_rate: 0.09
//	catalog:
//	  - key: laptop
//	    description: Laptop Computer
//	    unit_price: 1200
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lookup tables: %w", err)
	}

	var f tablesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing lookup tables: %w", err)
	}

	clients := make([]Client, 0, len(f.Clients))
	for _, c := range f.Clients {
		if normalize(c.Name) == "" {
			return nil, fmt.Errorf("lookup tables: client without name")
		}
		if c.DefaultTaxRate < 0 || c.DefaultTaxRate > 1 {
			return nil, fmt.Errorf("lookup tables: client %q: default_tax_rate must be within [0, 1]", c.Name)
		}
		clients = append(clients, c.Client)
	}
	for _, item := range f.Catalog {
		if item.UnitPrice <= 0 {
			return nil, fmt.Errorf("lookup tables: catalog item %q: unit_price must be greater than 0", item.Key)
		}
	}

	t := NewTables(clients, f.Catalog)
	for _, c := range f.Clients {
		for _, alias := range c.Aliases {
			t.withAlias(alias, c.Name)
		}
	}
	return t, nil
}

// SyncedLookup holds a replaceable Tables value. Readers take a snapshot per
// reconcile; Replace swaps the whole set atomically.
type SyncedLookup struct {
	mu     sync.RWMutex
	tables *Tables
}

// NewSyncedLookup wraps t.
func NewSyncedLookup(t *Tables) *SyncedLookup {
	return &SyncedLookup{tables: t}
}

// Snapshot returns the current tables.
func (s *SyncedLookup) Snapshot() Lookup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables
}

// Replace installs t for subsequent snapshots.
func (s *SyncedLookup) Replace(t *Tables) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = t
}

// LookupClient implements Lookup against the current snapshot.
func (s *SyncedLookup) LookupClient(name string) (Client, bool) {
	return s.Snapshot().LookupClient(name)
}

// MatchCatalog implements Lookup against the current snapshot.
func (s *SyncedLookup) MatchCatalog(description string) (CatalogItem, bool) {
	return s.Snapshot().MatchCatalog(description)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
