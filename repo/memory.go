package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dynashard/dynashard/metadata"
	"github.com/dynashard/dynashard/mtcontext"
)

// Memory is a tenant-keyed in-memory MetadataRepo. It is the default for the
// shared-table builder and the substitute of choice in tests.
type Memory struct {
	provider mtcontext.Provider

	mu     sync.RWMutex
	tables map[string]map[string]metadata.TableDescription
}

func NewMemory(provider mtcontext.Provider) *Memory {
	return &Memory{
		provider: provider,
		tables:   make(map[string]map[string]metadata.TableDescription),
	}
}

func (m *Memory) CreateTable(ctx context.Context, desc metadata.TableDescription) (metadata.TableDescription, error) {
	tenant, err := m.provider.Tenant(ctx)
	if err != nil {
		return metadata.TableDescription{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byName, ok := m.tables[tenant]
	if !ok {
		byName = make(map[string]metadata.TableDescription)
		m.tables[tenant] = byName
	}
	if _, exists := byName[desc.Name]; exists {
		return metadata.TableDescription{}, fmt.Errorf("virtual table %q already exists", desc.Name)
	}
	byName[desc.Name] = desc
	return desc, nil
}

func (m *Memory) TableDescription(ctx context.Context, name string) (metadata.TableDescription, error) {
	tenant, err := m.provider.Tenant(ctx)
	if err != nil {
		return metadata.TableDescription{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	desc, ok := m.tables[tenant][name]
	if !ok {
		return metadata.TableDescription{}, fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	return desc, nil
}

func (m *Memory) DeleteTable(ctx context.Context, name string) (metadata.TableDescription, error) {
	tenant, err := m.provider.Tenant(ctx)
	if err != nil {
		return metadata.TableDescription{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	desc, ok := m.tables[tenant][name]
	if !ok {
		return metadata.TableDescription{}, fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	delete(m.tables[tenant], name)
	return desc, nil
}

func (m *Memory) ListTables(ctx context.Context) ([]metadata.TableDescription, error) {
	tenant, err := m.provider.Tenant(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	descs := make([]metadata.TableDescription, 0, len(m.tables[tenant]))
	for _, desc := range m.tables[tenant] {
		descs = append(descs, desc)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs, nil
}
