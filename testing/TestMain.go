package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("STOCKLEDGER_TEST_MODE", "1")
		if os.Getenv("CATALOG_SOURCE_URL") == "" {
			_ = os.Setenv("CATALOG_SOURCE_URL", "http://127.0.0.1:0/products")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
