package lock

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestMutexMapSerializesPerKey(t *testing.T) {
	m := NewMutexMap()
	const workers = 8
	const iterations = 200

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				m.Lock("app1")
				counter++
				m.Unlock("app1")
			}
		}()
	}
	wg.Wait()

	if counter != workers*iterations {
		t.Errorf("counter: got %d, want %d", counter, workers*iterations)
	}
}

func TestMutexMapIndependentKeys(t *testing.T) {
	m := NewMutexMap()
	m.Lock("app1")
	defer m.Unlock("app1")

	// a different key must not be held by app1's lock
	done := make(chan struct{})
	go func() {
		m.Lock("app2")
		m.Unlock("app2")
		close(done)
	}()
	<-done
}

func TestFileLockExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")

	first := NewFileLock(path)
	if err := first.TryLock(); err != nil {
		t.Fatalf("first TryLock: %v", err)
	}

	second := NewFileLock(path)
	if err := second.TryLock(); err == nil {
		second.Unlock()
		t.Fatal("second TryLock should fail while the first holds the lock")
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	// after release the lock can be taken again
	if err := second.TryLock(); err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}
	second.Unlock()
}

func TestFileLockWritesPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")
	fl := NewFileLock(path)
	if err := fl.TryLock(); err != nil {
		t.Fatal(err)
	}
	defer fl.Unlock()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.ContainsAny(strings.TrimSpace(string(content)), "0123456789") {
		t.Errorf("lock file should hold the PID, got %q", content)
	}
}

func TestFileLockUnlockWithoutLock(t *testing.T) {
	fl := NewFileLock(filepath.Join(t.TempDir(), "daemon.lock"))
	if err := fl.Unlock(); err != nil {
		t.Errorf("Unlock without TryLock should be a no-op, got %v", err)
	}
}
