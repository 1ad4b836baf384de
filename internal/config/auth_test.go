package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJWTSecretFromEnv(t *testing.T) {
	restore := SetJWTSecret(nil)
	defer restore()

	t.Setenv("JWT_SECRET", "from-env")
	assert.Equal(t, []byte("from-env"), GetJWTSecret())
	assert.False(t, UsingDefaultJWTSecret())
}

func TestJWTSecretDefault(t *testing.T) {
	restore := SetJWTSecret(nil)
	defer restore()

	t.Setenv("JWT_SECRET", "")
	assert.True(t, UsingDefaultJWTSecret())
}

func TestSetJWTSecretRestores(t *testing.T) {
	original := GetJWTSecret()

	restore := SetJWTSecret([]byte("test-secret"))
	assert.Equal(t, []byte("test-secret"), GetJWTSecret())

	restore()
	assert.Equal(t, original, GetJWTSecret())
}

func TestJWTSecretConcurrentAccess(t *testing.T) {
	restore := SetJWTSecret(nil)
	defer restore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotEmpty(t, GetJWTSecret())
		}()
	}
	wg.Wait()
}
