package store

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// MemoryDriver is an in-process Driver used by tests and local development.
// Documents round-trip through BSON so the same struct tags drive both
// implementations.
type MemoryDriver struct {
	mu        sync.Mutex
	databases map[string]*memoryHandle
	master    *memoryHandle
	closed    bool
	opens     map[string]int

	// ProvisionHook, when set, runs before provisioning and can fail it.
	ProvisionHook func(name string) error

	// OpenHook, when set, runs before opening a database and can fail it.
	OpenHook func(name string) error
}

// NewMemoryDriver creates a memory driver with a master catalog database.
func NewMemoryDriver(masterName string) *MemoryDriver {
	d := &MemoryDriver{
		databases: make(map[string]*memoryHandle),
		opens:     make(map[string]int),
	}
	d.master = d.getOrCreate(masterName)
	return d
}

func (d *MemoryDriver) getOrCreate(name string) *memoryHandle {
	if h, ok := d.databases[name]; ok {
		return h
	}
	h := &memoryHandle{
		name:        name,
		driver:      d,
		collections: make(map[string]*memoryCollection),
	}
	d.databases[name] = h
	return h
}

// Master returns the master catalog handle.
func (d *MemoryDriver) Master() Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.master
}

// Open returns a handle to an existing named database.
func (d *MemoryDriver) Open(_ context.Context, name string) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if d.OpenHook != nil {
		if err := d.OpenHook(name); err != nil {
			return nil, err
		}
	}
	d.opens[name]++
	return d.getOrCreate(name), nil
}

// OpenCount reports how many times the named database has been opened.
func (d *MemoryDriver) OpenCount(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens[name]
}

// Provision creates a named database with baseline collections.
func (d *MemoryDriver) Provision(_ context.Context, name string) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if d.ProvisionHook != nil {
		if err := d.ProvisionHook(name); err != nil {
			return nil, err
		}
	}

	h := d.getOrCreate(name)
	for _, coll := range TenantCollections {
		h.getOrCreateCollection(coll)
	}
	return h, nil
}

// Teardown drops a named database.
func (d *MemoryDriver) Teardown(_ context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if name == d.master.name {
		return fmt.Errorf("refusing to tear down master catalog %q", name)
	}
	delete(d.databases, name)
	return nil
}

// Ping verifies the driver is open.
func (d *MemoryDriver) Ping(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrUnavailable
	}
	return nil
}

// Close releases the driver.
func (d *MemoryDriver) Close(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// memoryHandle implements Handle.
type memoryHandle struct {
	name        string
	driver      *MemoryDriver
	collections map[string]*memoryCollection
}

func (h *memoryHandle) Name() string {
	return h.name
}

func (h *memoryHandle) Collection(name string) Collection {
	h.driver.mu.Lock()
	defer h.driver.mu.Unlock()
	return h.getOrCreateCollection(name)
}

// getOrCreateCollection must be called with the driver lock held.
func (h *memoryHandle) getOrCreateCollection(name string) *memoryCollection {
	if c, ok := h.collections[name]; ok {
		return c
	}
	c := &memoryCollection{driver: h.driver}
	h.collections[name] = c
	return c
}

func (h *memoryHandle) Ping(_ context.Context) error {
	h.driver.mu.Lock()
	defer h.driver.mu.Unlock()
	if h.driver.closed {
		return ErrUnavailable
	}
	return nil
}

// memoryCollection implements Collection over decoded BSON documents.
type memoryCollection struct {
	driver  *MemoryDriver
	docs    []bson.M
	uniques [][]string
}

// scalarEqual compares a stored value against a filter value. Both sides are
// normalized through fmt.Sprint; filters in this service are equality checks
// on strings and bools only.
func scalarEqual(stored, want interface{}) bool {
	return fmt.Sprint(stored) == fmt.Sprint(want)
}

// matches must be called with the driver lock held.
func matches(doc bson.M, filter Filter) bool {
	for k, v := range filter {
		stored, ok := doc[k]
		if !ok {
			return false
		}
		if !scalarEqual(stored, v) {
			return false
		}
	}
	return true
}

func toDoc(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode failed: %w", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}
	return doc, nil
}

func decodeInto(doc bson.M, out interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode failed: %w", err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	return nil
}

func (c *memoryCollection) FindOne(_ context.Context, filter Filter, out interface{}) error {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()

	for _, doc := range c.docs {
		if matches(doc, filter) {
			return decodeInto(doc, out)
		}
	}
	return ErrNotFound
}

func (c *memoryCollection) Find(_ context.Context, filter Filter, out interface{}, opts *FindOptions) error {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()

	var matched []bson.M
	for _, doc := range c.docs {
		if matches(doc, filter) {
			matched = append(matched, doc)
		}
	}

	if opts != nil {
		if opts.Skip > 0 {
			if opts.Skip >= int64(len(matched)) {
				matched = nil
			} else {
				matched = matched[opts.Skip:]
			}
		}
		if opts.Limit > 0 && opts.Limit < int64(len(matched)) {
			matched = matched[:opts.Limit]
		}
	}

	docs := bson.A{}
	for _, doc := range matched {
		docs = append(docs, doc)
	}

	raw, err := bson.Marshal(bson.M{"docs": docs})
	if err != nil {
		return fmt.Errorf("encode failed: %w", err)
	}

	var wrapper struct {
		Docs bson.RawValue `bson:"docs"`
	}
	if err := bson.Unmarshal(raw, &wrapper); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	if err := wrapper.Docs.Unmarshal(out); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	return nil
}

func (c *memoryCollection) InsertOne(_ context.Context, v interface{}) error {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()

	doc, err := toDoc(v)
	if err != nil {
		return err
	}

	for _, fields := range c.uniques {
		for _, existing := range c.docs {
			same := true
			for _, f := range fields {
				if !scalarEqual(existing[f], doc[f]) {
					same = false
					break
				}
			}
			if same {
				return ErrDuplicateKey
			}
		}
	}

	c.docs = append(c.docs, doc)
	return nil
}

func (c *memoryCollection) UpdateOne(_ context.Context, filter Filter, update Update) (bool, error) {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()

	for i, doc := range c.docs {
		if matches(doc, filter) {
			updated := bson.M{}
			for k, v := range doc {
				updated[k] = v
			}
			for k, v := range update {
				updated[k] = v
			}
			// Normalize through BSON so updated values look like stored ones.
			normalized, err := toDoc(updated)
			if err != nil {
				return false, err
			}
			c.docs[i] = normalized
			return true, nil
		}
	}
	return false, nil
}

func (c *memoryCollection) DeleteOne(_ context.Context, filter Filter) (bool, error) {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()

	for i, doc := range c.docs {
		if matches(doc, filter) {
			c.docs = append(c.docs[:i], c.docs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (c *memoryCollection) Count(_ context.Context, filter Filter) (int64, error) {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()

	var n int64
	for _, doc := range c.docs {
		if matches(doc, filter) {
			n++
		}
	}
	return n, nil
}

func (c *memoryCollection) EnsureIndex(_ context.Context, fields []string, unique bool) error {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()

	if unique {
		c.uniques = append(c.uniques, fields)
	}
	return nil
}
