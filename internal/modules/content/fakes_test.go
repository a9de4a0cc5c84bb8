package content

import (
	"context"
	"sync"
	"testing"

	"github.com/yungbote/narrativeforge-backend/internal/modules/content/prompts"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
)

type fakeCaller struct {
	mu      sync.Mutex
	reply   string
	err     error
	systems []string
	users   []string
	models  []string
}

func (f *fakeCaller) Call(_ context.Context, model, system, user string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models = append(f.models, model)
	f.systems = append(f.systems, system)
	f.users = append(f.users, user)
	return f.reply, f.err
}

func (f *fakeCaller) DefaultModel() string { return "test-model" }
func (f *fakeCaller) MaxRetries() int      { return 2 }

func catalogue(t *testing.T) *prompts.Catalogue {
	t.Helper()
	c, err := prompts.Default()
	if err != nil {
		t.Fatalf("prompts.Default: %v", err)
	}
	return c
}

var testLog = logger.Nop()
