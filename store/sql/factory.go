package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-crm-install/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// StoreProvider groups the persistence surfaces the rest of the module wires
// against.
type StoreProvider interface {
	CompanyStore() core.CompanyStore
	LocationStore() core.LocationStore
	ContactStore() core.ContactStore
}

type RepositoryFactory struct {
	db *bun.DB

	companyStore  *CompanyStore
	locationStore *LocationStore
	contactStore  *ContactStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.companyStore != nil && f.locationStore != nil && f.contactStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) CompanyStore() core.CompanyStore {
	if f == nil {
		return nil
	}
	return f.companyStore
}

func (f *RepositoryFactory) LocationStore() core.LocationStore {
	if f == nil {
		return nil
	}
	return f.locationStore
}

func (f *RepositoryFactory) ContactStore() core.ContactStore {
	if f == nil {
		return nil
	}
	return f.contactStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	companyStore, err := NewCompanyStore(f.db)
	if err != nil {
		return err
	}
	f.companyStore = companyStore

	locationStore, err := NewLocationStore(f.db)
	if err != nil {
		return err
	}
	f.locationStore = locationStore

	contactStore, err := NewContactStore(f.db)
	if err != nil {
		return err
	}
	f.contactStore = contactStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

var _ StoreProvider = (*RepositoryFactory)(nil)
