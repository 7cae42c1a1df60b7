// Package reflector derives stable names for Go types. Lookups are cached
// and meant to run at registration time, never on a hot path.
package reflector

import (
	"path"
	"reflect"
	"sync"
)

var cache sync.Map // reflect.Type -> TypeInfo

// TypeInfo describes a (pointer-unwrapped) named type.
type TypeInfo struct {
	// Name is the fully qualified name, e.g. "github.com/acme/bank.Deposited".
	Name string
	// ShortName is the package-local name, e.g. "bank.Deposited".
	ShortName string
	Type      reflect.Type
}

// TypeInfoOf returns TypeInfo for the dynamic type of x.
func TypeInfoOf(x any) TypeInfo { return TypeInfoForType(reflect.TypeOf(x)) }

// TypeInfoFor returns TypeInfo for T.
func TypeInfoFor[T any]() TypeInfo { return TypeInfoForType(reflect.TypeFor[T]()) }

// TypeInfoForType returns TypeInfo for t; pointer types are unwrapped.
func TypeInfoForType(t reflect.Type) TypeInfo {
	if t == nil {
		return TypeInfo{}
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if ti, ok := cache.Load(t); ok {
		return ti.(TypeInfo)
	}
	ti := TypeInfo{
		Name:      t.PkgPath() + "." + t.Name(),
		ShortName: t.Name(),
		Type:      t,
	}
	if pkg := t.PkgPath(); pkg != "" {
		ti.ShortName = path.Base(pkg) + "." + t.Name()
	}
	actual, _ := cache.LoadOrStore(t, ti)
	return actual.(TypeInfo)
}
