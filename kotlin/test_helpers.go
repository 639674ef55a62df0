package kotlin

import (
	"testing"
	"time"

	"github.com/user/ibeacon-blue/util"
)

// setupTestEnv points the data directory at a per-test temp dir
func setupTestEnv(t *testing.T) string {
	tmpDir := t.TempDir()
	t.Setenv(util.DataDirEnv, tmpDir)
	return tmpDir
}

// testAdvertiseCallback is a test implementation of AdvertiseCallback
// Shared across all test files
type testAdvertiseCallback struct {
	onStartSuccess func(settings *AdvertiseSettings)
	onStartFailure func(errorCode int)
}

func (c *testAdvertiseCallback) OnStartSuccess(settings *AdvertiseSettings) {
	if c.onStartSuccess != nil {
		c.onStartSuccess(settings)
	}
}

func (c *testAdvertiseCallback) OnStartFailure(errorCode int) {
	if c.onStartFailure != nil {
		c.onStartFailure(errorCode)
	}
}

// channelCallback returns a callback that reports into buffered channels
func channelCallback() (*testAdvertiseCallback, chan *AdvertiseSettings, chan int) {
	success := make(chan *AdvertiseSettings, 4)
	failure := make(chan int, 4)
	return &testAdvertiseCallback{
		onStartSuccess: func(settings *AdvertiseSettings) { success <- settings },
		onStartFailure: func(errorCode int) { failure <- errorCode },
	}, success, failure
}

// waitStart blocks until the callback fires and returns 0 on success or the error code
func waitStart(t *testing.T, success chan *AdvertiseSettings, failure chan int) int {
	t.Helper()
	select {
	case <-success:
		return 0
	case code := <-failure:
		return code
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Timeout waiting for advertise callback")
		return -1
	}
}
