package supervisor_test

import (
	"os"
	"testing"

	"github.com/korydraughn/irodsd/internal/testsupport"
)

func TestMain(m *testing.M) {
	testsupport.RunHelperIfRequested()
	os.Exit(m.Run())
}
