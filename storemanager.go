package gowfs

import (
	"encoding/xml"
	"errors"
	"fmt"
	"sync"

	"github.com/xiaoxuxiansheng/gowfs/feature"
	"github.com/xiaoxuxiansheng/gowfs/featurestore"
)

// StoreManager 要素类型到要素存储的映射
type StoreManager struct {
	mux    sync.RWMutex
	stores []featurestore.FeatureStore
	types  map[xml.Name]featurestore.FeatureStore
}

func NewStoreManager() *StoreManager {
	return &StoreManager{
		types: make(map[xml.Name]featurestore.FeatureStore),
	}
}

// AddStore 同一个要素类型只能由一个存储提供
func (s *StoreManager) AddStore(store featurestore.FeatureStore) error {
	schema := store.Schema()
	if schema == nil {
		return errors.New("store without schema")
	}

	s.mux.Lock()
	defer s.mux.Unlock()
	for _, ft := range schema.FeatureTypes {
		if _, ok := s.types[ft.Name]; ok {
			return fmt.Errorf("repeat feature type: %s", ft.Name.Local)
		}
	}
	for _, ft := range schema.FeatureTypes {
		s.types[ft.Name] = store
	}
	s.stores = append(s.stores, store)
	return nil
}

// Stores 按注册顺序
func (s *StoreManager) Stores() []featurestore.FeatureStore {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return append([]featurestore.FeatureStore(nil), s.stores...)
}

// StoreFor 名称没有命名空间时按本地名匹配
func (s *StoreManager) StoreFor(typeName xml.Name) featurestore.FeatureStore {
	store, _ := s.lookup(typeName)
	return store
}

// FeatureType 提供该类型的存储中的声明
func (s *StoreManager) FeatureType(typeName xml.Name) *feature.FeatureType {
	_, ft := s.lookup(typeName)
	return ft
}

func (s *StoreManager) lookup(typeName xml.Name) (featurestore.FeatureStore, *feature.FeatureType) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	if store, ok := s.types[typeName]; ok {
		return store, store.Schema().FeatureType(typeName)
	}
	for _, store := range s.stores {
		if ft := store.Schema().FeatureType(typeName); ft != nil {
			return store, ft
		}
	}
	return nil, nil
}

// FeatureTypes 所有存储提供的要素类型，按注册顺序
func (s *StoreManager) FeatureTypes() []*feature.FeatureType {
	s.mux.RLock()
	defer s.mux.RUnlock()
	var out []*feature.FeatureType
	for _, store := range s.stores {
		out = append(out, store.Schema().FeatureTypes...)
	}
	return out
}
