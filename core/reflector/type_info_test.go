package reflector

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type testStruct struct {
	Name string
}

func TestTypeInfoOf(t *testing.T) {
	ti := TypeInfoOf(testStruct{Name: "test"})
	require.Equal(t, "github.com/codewandler/axon-go/core/reflector.testStruct", ti.Name)
	require.Equal(t, "reflector.testStruct", ti.ShortName)
	require.Equal(t, "testStruct", ti.Type.Name())
}

func TestTypeInfoOf_Pointer(t *testing.T) {
	ti := TypeInfoOf(&testStruct{})
	require.Equal(t, "reflector.testStruct", ti.ShortName)
	require.NotEqual(t, reflect.Pointer, ti.Type.Kind())

	pp := &testStruct{}
	require.Equal(t, ti, TypeInfoOf(&pp))
}

func TestTypeInfoFor(t *testing.T) {
	require.Equal(t, TypeInfoOf(testStruct{}), TypeInfoFor[testStruct]())
	require.Equal(t, TypeInfoOf(testStruct{}), TypeInfoFor[*testStruct]())
}

func TestTypeInfo_Builtin(t *testing.T) {
	ti := TypeInfoOf(42)
	require.Equal(t, "int", ti.ShortName)
	require.Equal(t, TypeInfo{}, TypeInfoOf(nil))
}

func TestTypeInfo_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = TypeInfoFor[testStruct]()
		}()
	}
	wg.Wait()
}
